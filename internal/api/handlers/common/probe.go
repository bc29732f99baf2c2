package common

import (
	"context"
	"errors"
	"fmt"

	"github/chapool/wallet-broker/internal/api"
)

var ErrServerNotReady = errors.New("server is not fully initialized")

const probeKey = "-/probe"

// ProbeReadiness checks that every component is wired and the storage answers within ctx.
func ProbeReadiness(ctx context.Context, s *api.Server) []error {
	if !s.Ready() {
		return []error{ErrServerNotReady}
	}

	var errs []error
	if err := probeStorage(ctx, s); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// ProbeLiveness checks that the storage answers within ctx.
func ProbeLiveness(ctx context.Context, s *api.Server) []error {
	if s.Storage == nil {
		return []error{ErrServerNotReady}
	}

	var errs []error
	if err := probeStorage(ctx, s); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func probeStorage(ctx context.Context, s *api.Server) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.Storage.Has([]byte(probeKey))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("storage probe failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("storage probe timed out: %w", ctx.Err())
	}
}

// Package diag receives unexpected errors. Reporting never changes what the caller sees.
package diag

import (
	"context"

	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
)

type Reporter interface {
	Report(ctx context.Context, operation string, err error)
}

type reporter struct {
	metrics *metrics.Service
}

//nolint:ireturn // Returning interface is intentional for dependency injection
func NewReporter(m *metrics.Service) Reporter {
	return &reporter{metrics: m}
}

func (r *reporter) Report(ctx context.Context, operation string, err error) {
	if err == nil {
		return
	}

	util.LogFromContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("Unexpected error reported")

	r.metrics.DiagnosticReported(operation)
}

package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/util/command"
)

const (
	verboseFlag string = "verbose"
)

var errProbeFailed = errors.New("probe failed")

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newLiveness(),
		newReadiness(),
	)
}

type probeFunc func(ctx context.Context, s *api.Server) []error

// runProbe runs fn against a freshly initialized server within timeout.
func runProbe(cmd *cobra.Command, name string, timeout func(config.Server) time.Duration, fn probeFunc) error {
	verbose, _ := cmd.Flags().GetBool(verboseFlag)
	cfg := config.DefaultServiceConfigFromEnv()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return command.WithServer(ctx, cfg, func(ctx context.Context, s *api.Server) error {
		ctx, cancel := context.WithTimeout(ctx, timeout(cfg))
		defer cancel()

		errs := fn(ctx, s)
		if len(errs) > 0 {
			for _, err := range errs {
				log.Warn().Err(err).Str("probe", name).Msg("Probe failed")
			}
			return fmt.Errorf("%s: %w", name, errProbeFailed)
		}

		if verbose {
			log.Info().Str("probe", name).Msg("Probe succeeded")
		}

		return nil
	})
}

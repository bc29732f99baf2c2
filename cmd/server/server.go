package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/util/command"
)

const chaindataFlag = "chaindata"

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts the server",
		Long: `Starts the broker: recovers requests left pending by a previous process,
resumes watching broadcast transactions and serves the websocket ports and the approval API.
Requires configuration through ENV.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			if path, _ := cmd.Flags().GetString(chaindataFlag); path != "" {
				cfg.Chaindata.File = path
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String(chaindataFlag, "", "Path of the chaindata file, overrides SERVER_CHAINDATA_FILE.")

	return cmd
}

func run(ctx context.Context, cfg config.Server) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return command.WithServer(ctx, cfg, func(ctx context.Context, s *api.Server) error {
		if err := logInventory(ctx, s); err != nil {
			return err
		}

		if err := s.StartWorkers(ctx); err != nil {
			return err
		}

		errc := make(chan error, 1)
		go func() {
			errc <- s.Start()
		}()

		log.Info().Str("address", cfg.Echo.ListenAddress).Msg("Server started")

		select {
		case <-ctx.Done():
			log.Info().Msg("Received shutdown signal")
			return nil
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}

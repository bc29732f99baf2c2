package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util/command"
)

const pingTimeout = 10 * time.Second

func newMigrate() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Executes all migrations which are not yet applied.",
		Long: `Applies the key/value schema to the postgres storage.
Other storage drivers keep no schema and are left untouched.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			command.SetupLogger(cfg)

			return migrate(cfg.Storage)
		},
	}
}

func migrate(cfg config.StorageServer) error {
	if cfg.Driver != storage.DriverPostgres {
		log.Info().Str("driver", cfg.Driver).Msg("Storage driver has no migrations")
		return nil
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return errors.Wrap(err, "failed to open postgres connection")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "failed to ping postgres")
	}

	n, err := storage.Migrate(db)
	if err != nil {
		return err
	}

	log.Info().Int("applied", n).Msg("Applied migrations")

	return nil
}

package env

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/config"
)

const redacted = "<redacted>"

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the env",
		Long: `Prints the server config as parsed from defaults, the config file and ENV.
Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			if cfg.Echo.ApproverToken != "" {
				cfg.Echo.ApproverToken = redacted
			}
			if cfg.Storage.DSN != "" {
				cfg.Storage.DSN = redacted
			}
			if cfg.Mailer.Password != "" {
				cfg.Mailer.Password = redacted
			}

			c, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal the env")
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(c))

			return nil
		},
	}
}

package probe

import (
	"time"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api/handlers/common"
	"github/chapool/wallet-broker/internal/config"
)

func newReadiness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Runs readiness probes",
		Long: `This command checks that every component initializes and the storage answers.
Exits with a non-zero code when a probe fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, "readiness",
				func(cfg config.Server) time.Duration { return cfg.Management.ReadinessTimeout },
				common.ProbeReadiness)
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output.")

	return cmd
}

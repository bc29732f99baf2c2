package probe

import (
	"time"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api/handlers/common"
	"github/chapool/wallet-broker/internal/config"
)

func newLiveness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Runs liveness probes",
		Long: `This command runs the liveness probes against the configured storage.
Exits with a non-zero code when a probe fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProbe(cmd, "liveness",
				func(cfg config.Server) time.Duration { return cfg.Management.LivenessTimeout },
				common.ProbeLiveness)
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Show verbose output.")

	return cmd
}

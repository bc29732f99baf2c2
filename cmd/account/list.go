package account

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
)

func newList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists keyring entries and accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd, func(ctx context.Context, s *api.Server) error {
				entries, err := s.Keyring.List(ctx)
				if err != nil {
					return err
				}

				accounts, err := s.Accounts.List(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ENTRY\tNAME\tCREATED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Name, e.CreatedAt.Format("2006-01-02"))
				}
				fmt.Fprintln(w)

				fmt.Fprintln(w, "ADDRESS\tFAMILY\tNAME\tENTRY\tPATH")
				for _, a := range accounts {
					entry := a.KeyringID
					if a.Hardware {
						entry = "hardware"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Address, a.Family, a.Name, entry, a.DerivationPath)
				}

				return w.Flush()
			})
		},
	}
}

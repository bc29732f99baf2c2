package account

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/keyring"
)

func newGenerate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generates a new mnemonic and its first account",
		Long: `Generates a 12 word mnemonic, encrypts it with a password read from the terminal
and derives its first account. The mnemonic is printed once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString(nameFlag)
			family, _ := cmd.Flags().GetString(familyFlag)

			password, err := newPrompter(cmd).newPassword()
			if err != nil {
				return err
			}

			return withServer(cmd, func(ctx context.Context, s *api.Server) error {
				entry, mnemonic, err := s.Keyring.Generate(ctx, name, password)
				if err != nil {
					return err
				}

				acc, err := s.Keyring.CreateAccount(ctx, entry.ID, address.Family(family), name, keyring.Credential{Password: password})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entry:    %s\n", entry.ID)
				fmt.Fprintf(out, "Account:  %s (%s)\n", acc.Address, acc.DerivationPath)
				fmt.Fprintf(out, "Mnemonic: %s\n", mnemonic)
				fmt.Fprintln(out, "Write the mnemonic down, it is not shown again.")

				return nil
			})
		},
	}

	cmd.Flags().String(nameFlag, "main", "Name of the keyring entry and its first account.")
	cmd.Flags().String(familyFlag, string(address.FamilyEthereum), "Key family of the first account (ethereum or ecdsa).")

	return cmd
}

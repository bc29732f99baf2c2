package account

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/keyring"
)

func newImport() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Imports a mnemonic and derives its first account",
		Long: `Reads a mnemonic and a password from the terminal (or stdin, one per line),
stores the encrypted mnemonic and derives its first account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString(nameFlag)
			family, _ := cmd.Flags().GetString(familyFlag)

			p := newPrompter(cmd)
			mnemonic, err := p.secret("Mnemonic: ")
			if err != nil {
				return err
			}

			password, err := p.newPassword()
			if err != nil {
				return err
			}

			return withServer(cmd, func(ctx context.Context, s *api.Server) error {
				entry, err := s.Keyring.Import(ctx, name, mnemonic, password)
				if err != nil {
					return err
				}

				acc, err := s.Keyring.CreateAccount(ctx, entry.ID, address.Family(family), name, keyring.Credential{Password: password})
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Entry:   %s\nAccount: %s (%s)\n", entry.ID, acc.Address, acc.DerivationPath)

				return nil
			})
		},
	}

	cmd.Flags().String(nameFlag, "main", "Name of the keyring entry and its first account.")
	cmd.Flags().String(familyFlag, string(address.FamilyEthereum), "Key family of the first account (ethereum or ecdsa).")

	return cmd
}

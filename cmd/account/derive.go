package account

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/keyring"
)

const createFlag = "create"

func newDerive() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive <entry-id>",
		Short: "Prints the next free derivation path of a keyring entry",
		Long: `Searches the lowest derivation path of the entry whose address is not yet a stored
account. With --create the account is derived and stored as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString(nameFlag)
			family, _ := cmd.Flags().GetString(familyFlag)
			create, _ := cmd.Flags().GetBool(createFlag)

			password, err := newPrompter(cmd).secret("Password: ")
			if err != nil {
				return err
			}
			cred := keyring.Credential{Password: password}

			return withServer(cmd, func(ctx context.Context, s *api.Server) error {
				if !create {
					path, err := s.Keyring.NextDerivationPath(ctx, args[0], address.Family(family), cred)
					if err != nil {
						return err
					}

					fmt.Fprintln(cmd.OutOrStdout(), path)

					return nil
				}

				acc, err := s.Keyring.CreateAccount(ctx, args[0], address.Family(family), name, cred)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", acc.Address, acc.DerivationPath)

				return nil
			})
		},
	}

	cmd.Flags().String(nameFlag, "", "Name of the created account.")
	cmd.Flags().String(familyFlag, string(address.FamilyEthereum), "Key family (ethereum or ecdsa).")
	cmd.Flags().Bool(createFlag, false, "Derive and store the account.")

	return cmd
}

package server

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-broker/internal/api"
)

// logInventory reports what the broker can sign for at startup. A broker without keyring
// entries still serves external signing and hardware flows.
func logInventory(ctx context.Context, s *api.Server) error {
	entries, err := s.Keyring.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list keyring entries")
	}

	accounts, err := s.Accounts.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list accounts")
	}

	hardware := 0
	for _, acc := range accounts {
		if acc.Hardware {
			hardware++
		}
	}

	l := log.Info().
		Int("keyring_entries", len(entries)).
		Int("accounts", len(accounts)).
		Int("hardware_accounts", hardware).
		Int("chains", len(s.Chaindata.Chains())).
		Int("evm_networks", len(s.Chaindata.EVMNetworks()))

	if len(entries) == 0 {
		l.Msg("No keyring entries, import one with 'app account import'")
		return nil
	}

	l.Msg("Keyring loaded")

	return nil
}

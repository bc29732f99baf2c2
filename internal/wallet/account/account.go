package account

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

// Account is a wallet account. Keyring accounts carry the keyring entry and derivation path of
// their key; hardware accounts only carry the address.
type Account struct {
	Address        string         `json:"address"`
	Family         address.Family `json:"family"`
	Name           string         `json:"name"`
	KeyringID      string         `json:"keyringId,omitempty"`
	DerivationPath string         `json:"derivationPath"`
	Hardware       bool           `json:"hardware,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type Service interface {
	Add(ctx context.Context, acc *Account) error

	// GetAccountByAddress matches addresses after normalisation.
	GetAccountByAddress(ctx context.Context, addr string) (*Account, error)

	List(ctx context.Context) ([]*Account, error)
}

type service struct {
	db storage.DB
}

// NewService stores accounts in db, which is expected to be a dedicated keyspace.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(db storage.DB) Service {
	return &service{db: db}
}

func (s *service) Add(ctx context.Context, acc *Account) error {
	key, err := address.Normalize(acc.Address)
	if err != nil {
		return err
	}

	exists, err := s.db.Has([]byte(key))
	if err != nil {
		return errors.Wrap(err, "failed to check account existence")
	}
	if exists {
		return errs.InvalidPayload("account %s already exists", acc.Address)
	}

	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(acc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal account")
	}

	if err := s.db.Put([]byte(key), data); err != nil {
		return errors.Wrap(err, "failed to store account")
	}

	util.LogFromContext(ctx).Info().Str("address", acc.Address).Str("family", string(acc.Family)).Msg("Account added")

	return nil
}

func (s *service) GetAccountByAddress(_ context.Context, addr string) (*Account, error) {
	key, err := address.Normalize(addr)
	if err != nil {
		return nil, errs.NotFound("account", addr)
	}

	data, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, errs.NotFound("account", addr)
		}
		return nil, errors.Wrap(err, "failed to get account")
	}

	var acc Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal account")
	}

	return &acc, nil
}

func (s *service) List(_ context.Context) ([]*Account, error) {
	var accounts []*Account
	err := s.db.ForEach(nil, func(_, value []byte) error {
		var acc Account
		if err := json.Unmarshal(value, &acc); err != nil {
			return errors.Wrap(err, "failed to unmarshal account")
		}
		accounts = append(accounts, &acc)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return accounts, nil
}

package keyring

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/keystore"
	"github/chapool/wallet-broker/internal/wallet/signer"
)

const entropyBits = 128

type service struct {
	db        storage.DB
	accounts  account.Service
	addresses address.Service
	params    keystore.ScryptParams
}

// NewService stores entries in db, which is expected to be a dedicated keyspace.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(db storage.DB, accounts account.Service, addresses address.Service, params keystore.ScryptParams) Service {
	return &service{
		db:        db,
		accounts:  accounts,
		addresses: addresses,
		params:    params,
	}
}

func (s *service) Import(ctx context.Context, name string, mnemonic string, password string) (*Entry, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errs.InvalidPayload("invalid mnemonic")
	}
	if password == "" {
		return nil, errs.InvalidPayload("password must not be empty")
	}

	ks, err := keystore.Encrypt([]byte(mnemonic), password, s.params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt mnemonic")
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Name:      name,
		Keystore:  ks,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal keyring entry")
	}

	if err := s.db.Put([]byte(entry.ID), data); err != nil {
		return nil, errors.Wrap(err, "failed to store keyring entry")
	}

	util.LogFromContext(ctx).Info().Str("id", entry.ID).Str("name", name).Msg("Keyring entry stored")

	return entry, nil
}

func (s *service) Generate(ctx context.Context, name string, password string) (*Entry, string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate entropy")
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate mnemonic")
	}

	entry, err := s.Import(ctx, name, mnemonic, password)
	if err != nil {
		return nil, "", err
	}

	return entry, mnemonic, nil
}

func (s *service) Get(_ context.Context, id string) (*Entry, error) {
	data, err := s.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, errs.NotFound("keyring entry", id)
		}
		return nil, errors.Wrap(err, "failed to get keyring entry")
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal keyring entry")
	}

	return &entry, nil
}

func (s *service) List(_ context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.ForEach(nil, func(_, value []byte) error {
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil {
			return errors.Wrap(err, "failed to unmarshal keyring entry")
		}
		entries = append(entries, &entry)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	return entries, nil
}

func (s *service) mnemonic(ctx context.Context, id string, cred Credential) (string, error) {
	if cred.Empty() {
		return "", errs.New(errs.CodeUnauthorized, "no credential supplied")
	}

	entry, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	plain, err := keystore.Decrypt(entry.Keystore, cred.Password)
	if err != nil {
		return "", err
	}

	return string(plain), nil
}

func (s *service) NextDerivationPath(ctx context.Context, id string, family address.Family, cred Credential) (string, error) {
	mnemonic, err := s.mnemonic(ctx, id, cred)
	if err != nil {
		return "", err
	}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to list accounts")
	}

	known := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		known = append(known, acc.Address)
	}

	return s.addresses.NextDerivationPath(ctx, mnemonic, family, known)
}

func (s *service) CreateAccount(ctx context.Context, id string, family address.Family, name string, cred Credential) (*account.Account, error) {
	path, err := s.NextDerivationPath(ctx, id, family, cred)
	if err != nil {
		return nil, err
	}

	mnemonic, err := s.mnemonic(ctx, id, cred)
	if err != nil {
		return nil, err
	}

	addr, err := s.addresses.DeriveAddress(ctx, mnemonic, path, family)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive address")
	}

	acc := &account.Account{
		Address:        addr,
		Family:         family,
		Name:           name,
		KeyringID:      id,
		DerivationPath: path,
	}
	if err := s.accounts.Add(ctx, acc); err != nil {
		return nil, err
	}

	return acc, nil
}

func (s *service) GetUnlockedSigner(ctx context.Context, addr string, cred Credential) (signer.Signer, error) {
	acc, err := s.accounts.GetAccountByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	if acc.KeyringID == "" {
		return nil, errs.New(errs.CodeUnauthorized, "account %s has no local key", addr)
	}

	mnemonic, err := s.mnemonic(ctx, acc.KeyringID, cred)
	if err != nil {
		return nil, err
	}

	privateKey, err := s.addresses.DerivePrivateKey(ctx, mnemonic, acc.DerivationPath, acc.Family)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive private key")
	}

	return signer.New(privateKey)
}

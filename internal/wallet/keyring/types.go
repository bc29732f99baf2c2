package keyring

import (
	"context"
	"time"

	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/keystore"
	"github/chapool/wallet-broker/internal/wallet/signer"
)

// Credential unlocks keyring entries for the duration of one call. It is never stored.
type Credential struct {
	Password string `json:"password"`
}

func (c Credential) Empty() bool {
	return c.Password == ""
}

// Entry is an encrypted mnemonic.
type Entry struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Keystore  *keystore.KeystoreJSON `json:"keystore"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Service manages encrypted mnemonics and hands out signers for their accounts.
type Service interface {
	// Import encrypts mnemonic with password.
	Import(ctx context.Context, name string, mnemonic string, password string) (*Entry, error)

	// Generate creates a new 12 word mnemonic and returns it once.
	Generate(ctx context.Context, name string, password string) (*Entry, string, error)

	Get(ctx context.Context, id string) (*Entry, error)

	List(ctx context.Context) ([]*Entry, error)

	// NextDerivationPath returns the lowest derivation path of the entry not used by a stored account.
	NextDerivationPath(ctx context.Context, id string, family address.Family, cred Credential) (string, error)

	// CreateAccount derives and stores the next free account of the entry.
	CreateAccount(ctx context.Context, id string, family address.Family, name string, cred Credential) (*account.Account, error)

	// GetUnlockedSigner returns the signer of a stored account, or Unauthorized when cred does not
	// unlock it.
	GetUnlockedSigner(ctx context.Context, addr string, cred Credential) (signer.Signer, error)
}

package address

import "context"

// Family is the key derivation scheme of an account.
type Family string

const (
	// FamilyEthereum derives BIP44 secp256k1 keys at m/44'/60'/0'/0/i.
	FamilyEthereum Family = "ethereum"
	// FamilyECDSA derives substrate secp256k1 keys from the mnemonic mini-secret with hard junctions //i.
	FamilyECDSA Family = "ecdsa"
)

const (
	// MaxDerivationIndex bounds the derivation search.
	MaxDerivationIndex = 1000

	// GenericSS58Prefix is used for substrate addresses that are not bound to a chain.
	GenericSS58Prefix uint16 = 42
)

// Service provides address derivation functionality
type Service interface {
	// DeriveAddress derives the address of mnemonic at path. Ethereum addresses are checksummed hex,
	// ECDSA addresses use the generic SS58 prefix.
	DeriveAddress(ctx context.Context, mnemonic string, path string, family Family) (string, error)

	// DerivePrivateKey derives a secp256k1 private key.
	// WARNING: Private key should be cleared after use
	DerivePrivateKey(ctx context.Context, mnemonic string, path string, family Family) ([]byte, error)

	// NextDerivationPath returns the lowest unused derivation path of mnemonic, comparing candidates
	// against the known addresses after normalisation.
	NextDerivationPath(ctx context.Context, mnemonic string, family Family, known []string) (string, error)

	// GetBIP44Path gets BIP44 path (fixed format for EVM chains)
	GetBIP44Path(addressIndex int) string
}

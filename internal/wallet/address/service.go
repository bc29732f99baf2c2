package address

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

type service struct{}

// NewService creates a new AddressService
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService() Service {
	return &service{}
}

func (s *service) DeriveAddress(ctx context.Context, mnemonic string, path string, family Family) (string, error) {
	privateKey, err := s.DerivePrivateKey(ctx, mnemonic, path, family)
	if err != nil {
		return "", err
	}
	defer wipe(privateKey)

	return addressFromKey(privateKey, family)
}

func (s *service) DerivePrivateKey(_ context.Context, mnemonic string, path string, family Family) ([]byte, error) {
	switch family {
	case FamilyEthereum:
		return deriveEthereumKey(mnemonic, path)
	case FamilyECDSA:
		return deriveECDSAKey(mnemonic, path)
	default:
		return nil, errs.InvalidPayload("unsupported account family %q", family)
	}
}

// GetBIP44Path gets BIP44 path (fixed format for EVM chains)
// Format: m/44'/60'/0'/0/{index}
func (s *service) GetBIP44Path(addressIndex int) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", addressIndex)
}

func addressFromKey(privateKey []byte, family Family) (string, error) {
	switch family {
	case FamilyEthereum:
		return ethereumAddress(privateKey)
	case FamilyECDSA:
		id, err := ecdsaAccountID(privateKey)
		if err != nil {
			return "", err
		}

		return EncodeSS58(id, GenericSS58Prefix), nil
	default:
		return "", errors.Errorf("unsupported account family %q", family)
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

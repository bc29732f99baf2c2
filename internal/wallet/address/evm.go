package address

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

const bip44Parent = "m/44'/60'/0'/0"

func masterKey(mnemonic string) (*bip32.Key, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, errs.InvalidPayload("invalid mnemonic")
	}
	defer wipe(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master key")
	}

	return key, nil
}

// deriveEthereumKey derives a private key from mnemonic and BIP44 path
// WARNING: Caller must clear the private key after use
func deriveEthereumKey(mnemonic string, path string) ([]byte, error) {
	master, err := masterKey(mnemonic)
	if err != nil {
		return nil, err
	}

	derivedKey, err := deriveKeyFromPath(master, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key from path")
	}

	return derivedKey.Key, nil
}

func ethereumAddress(privateKey []byte) (string, error) {
	ecdsaPrivateKey, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to convert to ECDSA private key")
	}

	publicKeyECDSA, ok := ecdsaPrivateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return "", errors.New("failed to cast public key to ECDSA")
	}

	return crypto.PubkeyToAddress(*publicKeyECDSA).Hex(), nil
}

// deriveKeyFromPath derives a key from BIP44 path
// Path format: m/44'/60'/0'/0/{index}
func deriveKeyFromPath(master *bip32.Key, path string) (*bip32.Key, error) {
	indices, err := parseBIP44Path(path)
	if err != nil {
		return nil, err
	}

	return deriveChildren(master, indices)
}

func deriveChildren(key *bip32.Key, indices []uint32) (*bip32.Key, error) {
	var err error
	for _, index := range indices {
		key, err = key.NewChildKey(index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive child key at index %d", index)
		}
	}

	return key, nil
}

// parseBIP44Path parses a BIP44 path string into indices
// Example: "m/44'/60'/0'/0/0" -> [2147483692, 2147483708, 2147483648, 0, 0]
func parseBIP44Path(path string) ([]uint32, error) {
	if len(path) == 0 || path[0] != 'm' {
		return nil, errs.InvalidPayload("invalid BIP44 path: %s", path)
	}

	// Remove 'm/' prefix
	if len(path) > 2 && path[1] == '/' {
		path = path[2:]
	} else {
		path = path[1:]
	}

	parts := []string{}
	current := ""
	for _, char := range path {
		if char == '/' {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
		} else {
			current += string(char)
		}
	}
	if current != "" {
		parts = append(parts, current)
	}

	indices := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := false
		if len(part) > 0 && part[len(part)-1] == '\'' {
			hardened = true
			part = part[:len(part)-1]
		}

		var index uint32
		if _, err := fmt.Sscanf(part, "%d", &index); err != nil {
			return nil, errs.InvalidPayload("invalid path segment: %s", part)
		}

		if hardened {
			index += bip32.FirstHardenedChild
		}

		indices = append(indices, index)
	}

	return indices, nil
}

package signer

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

type keySigner struct {
	key *ecdsa.PrivateKey
}

// New wraps a raw 32 byte private key. The slice is cleared once converted.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func New(privateKey []byte) (Signer, error) {
	defer func() {
		for i := range privateKey {
			privateKey[i] = 0
		}
	}()

	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert private key to ECDSA")
	}

	return &keySigner{key: key}, nil
}

func (s *keySigner) PublicKey() []byte {
	return crypto.CompressPubkey(&s.key.PublicKey)
}

func (s *keySigner) EVMAddress() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *keySigner) SubstrateAccountID() []byte {
	sum := blake2b.Sum256(s.PublicKey())

	return sum[:]
}

func (s *keySigner) SignSubstrate(message []byte) ([]byte, error) {
	digest := blake2b.Sum256(message)

	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign payload")
	}

	return sig, nil
}

func (s *keySigner) Wipe() {
	if s.key != nil && s.key.D != nil {
		s.key.D.SetInt64(0)
	}
}

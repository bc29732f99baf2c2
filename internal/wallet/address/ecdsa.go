package address

import (
	"crypto/sha512"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 2048 // BIP39 standard iterations
	pbkdf2KeyLength  = 64
	junctionLength   = 32
)

// hdkdPrefix is the SCALE encoded string "Secp256k1HDKD".
var hdkdPrefix = append([]byte{13 << 2}, "Secp256k1HDKD"...)

// miniSecret is PBKDF2-SHA512 over the mnemonic entropy, truncated to 32 bytes.
func miniSecret(mnemonic string) ([]byte, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, errs.InvalidPayload("invalid mnemonic")
	}
	defer wipe(entropy)

	seed := pbkdf2.Key(entropy, []byte("mnemonic"), pbkdf2Iterations, pbkdf2KeyLength, sha512.New)
	secret := make([]byte, junctionLength)
	copy(secret, seed[:junctionLength])
	wipe(seed)

	return secret, nil
}

// deriveECDSAKey applies the hard junctions of path ("//0//1") to the mini-secret.
// WARNING: Caller must clear the private key after use
func deriveECDSAKey(mnemonic string, path string) ([]byte, error) {
	junctions, err := parseJunctions(path)
	if err != nil {
		return nil, err
	}

	key, err := miniSecret(mnemonic)
	if err != nil {
		return nil, err
	}

	for _, cc := range junctions {
		next := hardDerive(key, cc)
		wipe(key)
		key = next
	}

	return key, nil
}

func hardDerive(seed []byte, chainCode [junctionLength]byte) []byte {
	buf := make([]byte, 0, len(hdkdPrefix)+2*junctionLength)
	buf = append(buf, hdkdPrefix...)
	buf = append(buf, seed...)
	buf = append(buf, chainCode[:]...)
	sum := blake2b.Sum256(buf)
	wipe(buf)

	return sum[:]
}

func parseJunctions(path string) ([][junctionLength]byte, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "//") {
		return nil, errs.InvalidPayload("invalid derivation path %q", path)
	}

	var junctions [][junctionLength]byte
	for _, part := range strings.Split(path[2:], "//") {
		if part == "" || strings.Contains(part, "/") {
			return nil, errs.InvalidPayload("soft or empty junction in %q is unsupported", path)
		}
		junctions = append(junctions, chainCode(part))
	}

	return junctions, nil
}

// chainCode encodes a numeric junction as a little endian integer and any other junction as a
// SCALE string, hashed when longer than 32 bytes.
func chainCode(junction string) [junctionLength]byte {
	var cc [junctionLength]byte

	if n, err := strconv.ParseUint(junction, 10, 64); err == nil {
		binary.LittleEndian.PutUint64(cc[:8], n)
		return cc
	}

	encoded := append(compactLength(len(junction)), junction...)
	if len(encoded) > junctionLength {
		return blake2b.Sum256(encoded)
	}
	copy(cc[:], encoded)

	return cc
}

func compactLength(n int) []byte {
	switch {
	case n < 1<<6:
		return []byte{byte(n << 2)}
	case n < 1<<14:
		v := uint16(n<<2) | 0b01
		return []byte{byte(v), byte(v >> 8)}
	default:
		v := uint32(n<<2) | 0b10
		return binary.LittleEndian.AppendUint32(nil, v)
	}
}

// ecdsaAccountID is the blake2b-256 hash of the compressed public key.
func ecdsaAccountID(privateKey []byte) ([]byte, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert to ECDSA private key")
	}

	return AccountIDFromPublicKey(crypto.CompressPubkey(&key.PublicKey)), nil
}

// AccountIDFromPublicKey maps a 33 byte compressed secp256k1 key to its 32 byte account id.
func AccountIDFromPublicKey(compressed []byte) []byte {
	sum := blake2b.Sum256(compressed)

	return sum[:]
}

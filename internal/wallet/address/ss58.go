package address

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/decred/base58"
	"github.com/ethereum/go-ethereum/common"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"golang.org/x/crypto/blake2b"
)

const (
	accountIDLength = 32
	checksumLength  = 2
	maxSS58Prefix   = 16383
)

var ss58Pre = []byte("SS58PRE")

// EncodeSS58 encodes a 32 byte account id with the network prefix.
func EncodeSS58(accountID []byte, prefix uint16) string {
	var payload []byte
	if prefix < 64 {
		payload = []byte{byte(prefix)}
	} else {
		payload = []byte{
			byte((prefix&0b1111_1100)>>2) | 0b0100_0000,
			byte(prefix>>8) | byte((prefix&0b11)<<6),
		}
	}
	payload = append(payload, accountID...)

	return base58.Encode(append(payload, ss58Checksum(payload)...))
}

// DecodeSS58 returns the account id and prefix of an SS58 address.
func DecodeSS58(addr string) ([]byte, uint16, error) {
	raw := base58.Decode(addr)
	if len(raw) < accountIDLength+checksumLength+1 {
		return nil, 0, errs.InvalidPayload("invalid SS58 address %q", addr)
	}

	var prefix uint16
	prefixLen := 1
	if raw[0]&0b0100_0000 != 0 {
		prefixLen = 2
		prefix = uint16(raw[0]&0b0011_1111)<<2 | uint16(raw[1]>>6) | uint16(raw[1]&0b0011_1111)<<8
	} else {
		prefix = uint16(raw[0])
	}

	if len(raw) != prefixLen+accountIDLength+checksumLength || prefix > maxSS58Prefix {
		return nil, 0, errs.InvalidPayload("invalid SS58 address %q", addr)
	}

	body := raw[:prefixLen+accountIDLength]
	if !bytes.Equal(ss58Checksum(body), raw[len(body):]) {
		return nil, 0, errs.InvalidPayload("invalid SS58 checksum in %q", addr)
	}

	return body[prefixLen:], prefix, nil
}

func ss58Checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Pre)
	h.Write(payload)

	return h.Sum(nil)[:checksumLength]
}

// Normalize returns a canonical key for address comparisons: lowercase hex for ethereum addresses,
// the hex account id for SS58 addresses regardless of their network prefix.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if common.IsHexAddress(addr) {
		return strings.ToLower(common.HexToAddress(addr).Hex()), nil
	}

	if strings.HasPrefix(addr, "0x") && len(addr) == 2+2*accountIDLength {
		if _, err := hex.DecodeString(addr[2:]); err == nil {
			return strings.ToLower(addr), nil
		}
	}

	id, _, err := DecodeSS58(addr)
	if err != nil {
		return "", err
	}

	return "0x" + hex.EncodeToString(id), nil
}

// AccountID returns the 32 byte account id of an SS58 address or 0x prefixed account id.
func AccountID(addr string) ([]byte, error) {
	normalized, err := Normalize(addr)
	if err != nil {
		return nil, err
	}
	if common.IsHexAddress(normalized) {
		return nil, errs.InvalidPayload("%s is not a substrate address", addr)
	}

	return hex.DecodeString(normalized[2:])
}

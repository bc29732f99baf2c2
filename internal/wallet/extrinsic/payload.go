package extrinsic

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"golang.org/x/crypto/blake2b"
)

const (
	version4Signed   = types.ExtrinsicBitSigned | types.ExtrinsicVersion4
	multiAddressID   = 0x00
	signatureECDSA   = 0x02
	signatureLength  = 65
	accountIDLength  = 32
	hashLength       = 32
	maxSignedPayload = 256
	// CheckMetadataHash mode "disabled" and an absent metadata hash.
	metadataModeDisabled = 0x00
	metadataHashNone     = 0x00
)

// ImmortalEra is the era of transactions that never expire.
var ImmortalEra = []byte{0x00}

// Payload is everything a signature commits to.
type Payload struct {
	Method             []byte
	Era                []byte
	Nonce              uint64
	Tip                *big.Int
	SpecVersion        uint32
	TransactionVersion uint32
	GenesisHash        []byte
	// BlockHash equals GenesisHash for immortal transactions.
	BlockHash    []byte
	MetadataHash bool
}

func (p *Payload) era() []byte {
	if len(p.Era) == 0 {
		return ImmortalEra
	}

	return p.Era
}

func (p *Payload) tip() *big.Int {
	if p.Tip == nil {
		return new(big.Int)
	}

	return p.Tip
}

// extra writes the signed extension data carried inside the extrinsic.
func (p *Payload) extra(e *encoder) *encoder {
	e.raw(p.era()).value(types.NewUCompactFromUInt(p.Nonce)).compact(p.tip())
	if p.MetadataHash {
		e.push(metadataModeDisabled)
	}

	return e
}

// Encode returns the SCALE encoded signing payload.
func (p *Payload) Encode() ([]byte, error) {
	e := p.extra(newEncoder().raw(p.Method)).
		value(types.NewU32(p.SpecVersion)).
		value(types.NewU32(p.TransactionVersion)).
		raw(p.GenesisHash).
		raw(p.BlockHash)
	if p.MetadataHash {
		e.push(metadataHashNone)
	}

	return e.result()
}

// SigningMessage is the encoded payload, hashed when longer than 256 bytes.
func (p *Payload) SigningMessage() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	enc, err := p.Encode()
	if err != nil {
		return nil, err
	}
	if len(enc) > maxSignedPayload {
		sum := blake2b.Sum256(enc)
		return sum[:], nil
	}

	return enc, nil
}

func (p *Payload) validate() error {
	if len(p.Method) < 2 {
		return errs.InvalidPayload("extrinsic method is empty")
	}
	if len(p.GenesisHash) != hashLength || len(p.BlockHash) != hashLength {
		return errs.InvalidPayload("genesis and block hash must be 32 bytes")
	}
	if err := CheckU128(p.tip()); err != nil {
		return errors.Wrap(err, "tip")
	}

	return nil
}

// Signed assembles a v4 extrinsic signed with an ECDSA MultiSignature.
func (p *Payload) Signed(accountID []byte, signature []byte) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(accountID) != accountIDLength {
		return nil, errs.InvalidPayload("account id must be 32 bytes")
	}
	if len(signature) != signatureLength {
		return nil, errs.InvalidPayload("ecdsa signature must be 65 bytes, got %d", len(signature))
	}

	e := newEncoder().
		push(version4Signed).
		multiAddress(accountID).
		push(signatureECDSA).
		raw(signature)
	body, err := p.extra(e).raw(p.Method).result()
	if err != nil {
		return nil, err
	}

	return Bytes(body), nil
}

// Hash is the blake2b-256 extrinsic hash as reported by nodes.
func Hash(ext []byte) string {
	sum := blake2b.Sum256(ext)

	return "0x" + hex.EncodeToString(sum[:])
}

func ToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func FromHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errs.InvalidPayload("invalid hex %q", s)
	}

	return b, nil
}

// SignerPayloadJSON is the unsigned payload exchanged with external (hardware or QR) signers.
// Numeric fields are hex encoded.
type SignerPayloadJSON struct {
	Address            string   `json:"address"`
	BlockHash          string   `json:"blockHash"`
	BlockNumber        string   `json:"blockNumber"`
	Era                string   `json:"era"`
	GenesisHash        string   `json:"genesisHash"`
	Method             string   `json:"method"`
	Nonce              string   `json:"nonce"`
	SpecVersion        string   `json:"specVersion"`
	Tip                string   `json:"tip"`
	TransactionVersion string   `json:"transactionVersion"`
	SignedExtensions   []string `json:"signedExtensions"`
	Version            int      `json:"version"`
	Mode               *int     `json:"mode,omitempty"`
}

// Payload converts the JSON form. CheckMetadataHash is enabled when listed in SignedExtensions.
func (j *SignerPayloadJSON) Payload() (*Payload, error) {
	method, err := FromHex(j.Method)
	if err != nil {
		return nil, err
	}
	era, err := FromHex(j.Era)
	if err != nil {
		return nil, err
	}
	genesis, err := FromHex(j.GenesisHash)
	if err != nil {
		return nil, err
	}
	block, err := FromHex(j.BlockHash)
	if err != nil {
		return nil, err
	}

	nonce, err := parseHexUint(j.Nonce)
	if err != nil {
		return nil, errors.Wrap(err, "nonce")
	}
	spec, err := parseHexUint(j.SpecVersion)
	if err != nil {
		return nil, errors.Wrap(err, "specVersion")
	}
	txVersion, err := parseHexUint(j.TransactionVersion)
	if err != nil {
		return nil, errors.Wrap(err, "transactionVersion")
	}

	tip := new(big.Int)
	if j.Tip != "" {
		if _, ok := tip.SetString(strings.TrimPrefix(j.Tip, "0x"), 16); !ok {
			return nil, errs.InvalidPayload("invalid tip %q", j.Tip)
		}
	}

	p := &Payload{
		Method:             method,
		Era:                era,
		Nonce:              nonce,
		Tip:                tip,
		SpecVersion:        uint32(spec),
		TransactionVersion: uint32(txVersion),
		GenesisHash:        genesis,
		BlockHash:          block,
	}
	for _, ext := range j.SignedExtensions {
		if ext == "CheckMetadataHash" {
			p.MetadataHash = true
		}
	}

	return p, p.validate()
}

func parseHexUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}

	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, errs.InvalidPayload("invalid hex number %q", s)
	}

	return n, nil
}

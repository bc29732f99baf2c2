package request

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

// Eth sign methods accepted from pages. Legacy typed data (v1) is not supported.
const (
	MethodPersonalSign      = "personal_sign"
	MethodEthSign           = "eth_sign"
	MethodSignTypedDataV3   = "eth_signTypedData_v3"
	MethodSignTypedDataV4   = "eth_signTypedData_v4"
	methodSignTypedData     = "eth_signTypedData"
	methodSignTypedDataV1   = "eth_signTypedData_v1"
	defaultSubstrateMethod  = "transferKeepAlive"
	maxTransferMethodLength = 64
)

// payload is implemented by every kind specific payload.
type payload interface {
	validate() error
	// account returns the address the payload acts for.
	account() string
}

type SubstrateSignPayload struct {
	Address string `json:"address"`
	// Payload is an extrinsic signing payload; Data is a raw message. Exactly one is set.
	Payload *extrinsic.SignerPayloadJSON `json:"payload,omitempty"`
	Data    string                       `json:"data,omitempty"`
}

func (p *SubstrateSignPayload) validate() error {
	if (p.Payload == nil) == (p.Data == "") {
		return errs.InvalidPayload("substrate-sign requires exactly one of payload or data")
	}
	if p.Payload != nil {
		if _, err := p.Payload.Payload(); err != nil {
			return err
		}
	} else if _, err := hexutil.Decode(p.Data); err != nil {
		return errs.InvalidPayload("data must be 0x prefixed hex")
	}

	return validAddress(p.Address)
}

func (p *SubstrateSignPayload) account() string { return p.Address }

type EthSignPayload struct {
	Method  string `json:"method"`
	Address string `json:"address"`
	// Message is a string (hex or utf-8) or, for typed data, a JSON object or its string form.
	Message json.RawMessage `json:"message"`
}

func (p *EthSignPayload) validate() error {
	switch p.Method {
	case MethodPersonalSign, MethodEthSign, MethodSignTypedDataV3, MethodSignTypedDataV4:
	case methodSignTypedData, methodSignTypedDataV1:
		return errs.InvalidPayload("%s is not supported", p.Method)
	default:
		return errs.InvalidPayload("unknown eth sign method %q", p.Method)
	}

	if !common.IsHexAddress(p.Address) {
		return errs.InvalidPayload("invalid address %q", p.Address)
	}
	if len(bytes.TrimSpace(p.Message)) == 0 || bytes.Equal(bytes.TrimSpace(p.Message), []byte("null")) {
		return errs.InvalidPayload("message is required")
	}

	return nil
}

func (p *EthSignPayload) account() string { return p.Address }

// EthTx is an eth_sendTransaction request object.
type EthTx struct {
	From                 string          `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                *hexutil.Uint64 `json:"nonce,omitempty"`
}

// GasSettings returns the fee fields set on the transaction, or nil.
func (t *EthTx) GasSettings() *fee.GasSettings {
	var gas uint64
	if t.Gas != nil {
		gas = uint64(*t.Gas)
	}

	switch {
	case t.MaxFeePerGas != nil && t.MaxPriorityFeePerGas != nil:
		return &fee.GasSettings{
			Type: fee.TypeEIP1559, Gas: gas,
			MaxFeePerGas: t.MaxFeePerGas.ToInt(), MaxPriorityFeePerGas: t.MaxPriorityFeePerGas.ToInt(),
		}
	case t.GasPrice != nil:
		return &fee.GasSettings{Type: fee.TypeLegacy, Gas: gas, GasPrice: t.GasPrice.ToInt()}
	}

	return nil
}

type EthSendPayload struct {
	EVMNetworkID string `json:"evmNetworkId"`
	Tx           EthTx  `json:"tx"`
}

func (p *EthSendPayload) validate() error {
	if p.EVMNetworkID == "" {
		return errs.InvalidPayload("evmNetworkId is required")
	}
	if !common.IsHexAddress(p.Tx.From) {
		return errs.InvalidPayload("invalid from address %q", p.Tx.From)
	}
	if p.Tx.To == nil && len(p.Tx.Data) == 0 {
		return errs.InvalidPayload("transaction needs a recipient or data")
	}

	return nil
}

func (p *EthSendPayload) account() string { return p.Tx.From }

// AssetTransferPayload is a token transfer. ChainID is the substrate chain or the EVM network of
// the token; Amount is in the smallest unit.
type AssetTransferPayload struct {
	ChainID     string           `json:"chainId"`
	TokenID     string           `json:"tokenId"`
	FromAddress string           `json:"fromAddress"`
	ToAddress   string           `json:"toAddress"`
	Amount      string           `json:"amount"`
	Tip         string           `json:"tip,omitempty"`
	Method      string           `json:"method,omitempty"`
	GasSettings *fee.GasSettings `json:"gasSettings,omitempty"`
	Priority    fee.Priority     `json:"priority,omitempty"`
}

func (p *AssetTransferPayload) validate() error {
	if p.TokenID == "" {
		return errs.InvalidPayload("tokenId is required")
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return err
	}
	if p.Tip != "" {
		if _, err := ParseAmount(p.Tip); err != nil {
			return err
		}
	}
	if len(p.Method) > maxTransferMethodLength {
		return errs.InvalidPayload("method too long")
	}
	if p.GasSettings != nil {
		if err := p.GasSettings.Validate(); err != nil {
			return err
		}
	}
	if err := validAddress(p.ToAddress); err != nil {
		return err
	}

	return validAddress(p.FromAddress)
}

func (p *AssetTransferPayload) account() string { return p.FromAddress }

// TransferMethod returns the requested balances method, transferKeepAlive by default.
func (p *AssetTransferPayload) TransferMethod() string {
	if p.Method == "" {
		return defaultSubstrateMethod
	}

	return p.Method
}

type AssetTransferHardwarePayload struct {
	EVMNetworkID      string `json:"evmNetworkId"`
	TokenID           string `json:"tokenId"`
	Amount            string `json:"amount"`
	ToAddress         string `json:"toAddress"`
	Unsigned          EthTx  `json:"unsigned"`
	SignedTransaction string `json:"signedTransaction,omitempty"`
}

func (p *AssetTransferHardwarePayload) validate() error {
	if p.EVMNetworkID == "" || p.TokenID == "" {
		return errs.InvalidPayload("evmNetworkId and tokenId are required")
	}
	if _, err := ParseAmount(p.Amount); err != nil {
		return err
	}
	if !common.IsHexAddress(p.Unsigned.From) {
		return errs.InvalidPayload("unsigned transaction needs a from address")
	}
	if p.SignedTransaction != "" {
		if _, err := hexutil.Decode(p.SignedTransaction); err != nil {
			return errs.InvalidPayload("signedTransaction must be 0x prefixed hex")
		}
	}

	return nil
}

func (p *AssetTransferHardwarePayload) account() string { return p.Unsigned.From }

type AssetTransferApproveSignPayload struct {
	Unsigned     extrinsic.SignerPayloadJSON `json:"unsigned"`
	Signature    string                      `json:"signature,omitempty"`
	TransferInfo *watcher.TransferInfo       `json:"transferInfo,omitempty"`
}

func (p *AssetTransferApproveSignPayload) validate() error {
	if _, err := p.Unsigned.Payload(); err != nil {
		return err
	}
	if p.Signature != "" {
		if _, err := hexutil.Decode(p.Signature); err != nil {
			return errs.InvalidPayload("signature must be 0x prefixed hex")
		}
	}

	return validAddress(p.Unsigned.Address)
}

func (p *AssetTransferApproveSignPayload) account() string { return p.Unsigned.Address }

// newPayload returns an empty payload of the kind.
func newPayload(kind Kind) (payload, error) {
	switch kind {
	case KindSubstrateSign:
		return &SubstrateSignPayload{}, nil
	case KindEthSign:
		return &EthSignPayload{}, nil
	case KindEthSend:
		return &EthSendPayload{}, nil
	case KindAssetTransfer:
		return &AssetTransferPayload{}, nil
	case KindAssetTransferHardware:
		return &AssetTransferHardwarePayload{}, nil
	case KindAssetTransferApproveSign:
		return &AssetTransferApproveSignPayload{}, nil
	default:
		return nil, errs.InvalidPayload("unknown request kind %q", kind)
	}
}

// DecodePayload decodes and validates raw as the payload of kind.
func DecodePayload(kind Kind, raw json.RawMessage) (any, error) {
	p, err := decodePayload(kind, raw)
	if err != nil {
		return nil, err
	}

	return p, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (payload, error) {
	p, err := newPayload(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errs.InvalidPayload("malformed %s payload: %v", kind, err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// ParseAmount parses a non negative integer amount in the smallest unit. Amounts are u128 on
// every supported chain.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, errs.InvalidPayload("amount is required")
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errs.InvalidPayload("invalid amount %q", s)
	}
	if err := extrinsic.CheckU128(v); err != nil {
		return nil, errs.InvalidPayload("amount %s is too large", s)
	}

	return v, nil
}

func validAddress(addr string) error {
	if _, err := address.Normalize(addr); err != nil {
		return errs.InvalidPayload("invalid address %q", addr)
	}

	return nil
}

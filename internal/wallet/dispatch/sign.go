package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/request"
)

var (
	bytesPrefix = []byte("<Bytes>")
	bytesSuffix = []byte("</Bytes>")
)

func (d *dispatcher) SignEth(ctx context.Context, p *request.EthSignPayload, cred keyring.Credential) (string, error) {
	sig, err := d.signers.GetUnlockedSigner(ctx, p.Address, cred)
	if err != nil {
		return "", err
	}
	defer sig.Wipe()

	if sig.EVMAddress() != common.HexToAddress(p.Address) {
		return "", errs.New(errs.CodeUnauthorized, "no key for %s", p.Address)
	}

	var signature []byte
	switch p.Method {
	case request.MethodPersonalSign, request.MethodEthSign:
		message, err := personalMessage(p.Message)
		if err != nil {
			return "", err
		}
		signature, err = sig.SignPersonal(message)
		if err != nil {
			return "", err
		}
	case request.MethodSignTypedDataV3, request.MethodSignTypedDataV4:
		data, err := typedData(p.Message)
		if err != nil {
			return "", err
		}
		signature, err = sig.SignTypedData(data)
		if err != nil {
			return "", errs.InvalidPayload("invalid typed data: %v", err)
		}
	default:
		return "", errs.InvalidPayload("unknown eth sign method %q", p.Method)
	}

	return hexutil.Encode(signature), nil
}

// personalMessage decodes 0x hex messages and takes anything else as utf-8 text.
func personalMessage(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errs.InvalidPayload("message must be a string")
	}

	if strings.HasPrefix(s, "0x") {
		if b, err := hexutil.Decode(s); err == nil {
			return b, nil
		}
	}

	return []byte(s), nil
}

// typedData accepts the typed data object or its JSON string form.
func typedData(raw json.RawMessage) (apitypes.TypedData, error) {
	var data apitypes.TypedData

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, errs.InvalidPayload("invalid typed data: %v", err)
	}

	return data, nil
}

func (d *dispatcher) SignSubstrate(ctx context.Context, p *request.SubstrateSignPayload, cred keyring.Credential) (string, error) {
	accountID, err := address.AccountID(p.Address)
	if err != nil {
		return "", errs.InvalidPayload("invalid address %q", p.Address)
	}

	var message []byte
	if p.Payload != nil {
		pl, err := p.Payload.Payload()
		if err != nil {
			return "", err
		}
		if message, err = pl.SigningMessage(); err != nil {
			return "", err
		}
	} else {
		data, err := hexutil.Decode(p.Data)
		if err != nil {
			return "", errs.InvalidPayload("data must be 0x prefixed hex")
		}
		message = wrapBytes(data)
	}

	sig, err := d.signers.GetUnlockedSigner(ctx, p.Address, cred)
	if err != nil {
		return "", err
	}
	defer sig.Wipe()

	if !bytes.Equal(sig.SubstrateAccountID(), accountID) {
		return "", errs.New(errs.CodeUnauthorized, "no key for %s", p.Address)
	}

	signature, err := sig.SignSubstrate(message)
	if err != nil {
		return "", err
	}

	return hexutil.Encode(append([]byte{multiSignatureECDSA}, signature...)), nil
}

// wrapBytes wraps raw messages in <Bytes> tags so they can never be a valid extrinsic payload.
func wrapBytes(data []byte) []byte {
	if bytes.HasPrefix(data, bytesPrefix) && bytes.HasSuffix(data, bytesSuffix) {
		return data
	}

	out := append([]byte{}, bytesPrefix...)
	out = append(out, data...)

	return append(out, bytesSuffix...)
}

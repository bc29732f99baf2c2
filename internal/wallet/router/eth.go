package router

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/request"
)

const methodSendTransaction = "eth_sendTransaction"

// ethRequest turns an EIP-1193 request into a pending eth-send or eth-sign request.
func (r *Router) ethRequest(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
	req, err := decode[EthRequest](raw)
	if err != nil {
		return nil, err
	}

	kind, payload, err := ethPayload(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}

	return r.createAndWait(ctx, sessionID, kind, body)
}

func ethPayload(req *EthRequest) (request.Kind, any, error) {
	if req.Method == methodSendTransaction {
		if len(req.Params) != 1 {
			return "", nil, errs.InvalidPayload("%s takes one transaction", req.Method)
		}

		var tx request.EthTx
		if err := json.Unmarshal(req.Params[0], &tx); err != nil {
			return "", nil, errs.InvalidPayload("malformed transaction: %v", err)
		}

		return request.KindEthSend, &request.EthSendPayload{EVMNetworkID: req.EVMNetworkID, Tx: tx}, nil
	}

	// Parameter order differs per method: personal_sign and legacy typed data put the message first.
	var addrIdx, msgIdx int
	switch req.Method {
	case request.MethodPersonalSign, "eth_signTypedData", "eth_signTypedData_v1":
		addrIdx, msgIdx = 1, 0
	case request.MethodEthSign, request.MethodSignTypedDataV3, request.MethodSignTypedDataV4:
		addrIdx, msgIdx = 0, 1
	default:
		return "", nil, errs.InvalidPayload("unsupported method %q", req.Method)
	}

	if len(req.Params) < 2 {
		return "", nil, errs.InvalidPayload("%s takes an address and a message", req.Method)
	}

	var addr string
	if err := json.Unmarshal(req.Params[addrIdx], &addr); err != nil {
		return "", nil, errs.InvalidPayload("address must be a string")
	}

	return request.KindEthSign, &request.EthSignPayload{
		Method:  req.Method,
		Address: addr,
		Message: req.Params[msgIdx],
	}, nil
}

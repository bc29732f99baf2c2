package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/request"
)

// SignatureResult is the result of pure signing requests.
type SignatureResult struct {
	Signature string `json:"signature"`
}

type handler func(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error)

// handlerFor selects how an approved request of kind is executed.
func handlerFor(kind request.Kind) (handler, error) {
	switch kind {
	case request.KindSubstrateSign:
		return executeSubstrateSign, nil
	case request.KindEthSign:
		return executeEthSign, nil
	case request.KindEthSend:
		return executeEthSend, nil
	case request.KindAssetTransfer:
		return executeAssetTransfer, nil
	case request.KindAssetTransferHardware:
		return executeHardwareTransfer, nil
	case request.KindAssetTransferApproveSign:
		return executeApproveSign, nil
	default:
		return nil, errs.InvalidPayload("unknown request kind %q", kind)
	}
}

type executor struct {
	d Dispatcher
}

// NewExecutor runs approved broker requests through d.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewExecutor(d Dispatcher) request.Executor {
	return &executor{d: d}
}

func (e *executor) Execute(ctx context.Context, req *request.Request, approval *request.Approval) (any, error) {
	h, err := handlerFor(req.Kind)
	if err != nil {
		return nil, err
	}

	payload, err := request.DecodePayload(req.Kind, req.Payload)
	if err != nil {
		return nil, err
	}

	if approval.DeviceError != nil {
		if approval.DeviceError.UserRejected() {
			return nil, errs.ErrUserRejected
		}

		return nil, errs.InvalidPayload("device error: %s", approval.DeviceError.Message)
	}

	return h(ctx, e.d, payload, approval)
}

func payloadAs[T any](payload any) (*T, error) {
	p, ok := payload.(*T)
	if !ok {
		return nil, errors.Errorf("unexpected payload type %T", payload)
	}

	return p, nil
}

func executeSubstrateSign(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.SubstrateSignPayload](payload)
	if err != nil {
		return nil, err
	}

	// Externally produced signatures pass through.
	if approval.Signature != "" {
		return &SignatureResult{Signature: approval.Signature}, nil
	}

	sig, err := d.SignSubstrate(ctx, p, approval.Credential)
	if err != nil {
		return nil, err
	}

	return &SignatureResult{Signature: sig}, nil
}

func executeEthSign(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.EthSignPayload](payload)
	if err != nil {
		return nil, err
	}

	if approval.Signature != "" {
		return &SignatureResult{Signature: approval.Signature}, nil
	}

	sig, err := d.SignEth(ctx, p, approval.Credential)
	if err != nil {
		return nil, err
	}

	return &SignatureResult{Signature: sig}, nil
}

func executeEthSend(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.EthSendPayload](payload)
	if err != nil {
		return nil, err
	}

	return d.SendEth(ctx, p, approval.GasSettings, approval.Credential)
}

func executeAssetTransfer(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.AssetTransferPayload](payload)
	if err != nil {
		return nil, err
	}

	if approval.GasSettings != nil || approval.Priority != "" {
		cp := *p
		if approval.GasSettings != nil {
			cp.GasSettings = approval.GasSettings
		}
		if approval.Priority != "" {
			cp.Priority = approval.Priority
		}
		p = &cp
	}

	return d.Transfer(ctx, p, approval.Credential)
}

func executeHardwareTransfer(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.AssetTransferHardwarePayload](payload)
	if err != nil {
		return nil, err
	}
	if approval.SignedTransaction == "" && p.SignedTransaction == "" {
		return nil, errs.InvalidPayload("signed transaction is required")
	}

	return d.TransferEthHardware(ctx, p, approval.SignedTransaction)
}

func executeApproveSign(ctx context.Context, d Dispatcher, payload any, approval *request.Approval) (any, error) {
	p, err := payloadAs[request.AssetTransferApproveSignPayload](payload)
	if err != nil {
		return nil, err
	}
	if approval.Signature == "" && p.Signature == "" {
		return nil, errs.InvalidPayload("signature is required")
	}

	return d.ApproveSign(ctx, p, approval.Signature)
}

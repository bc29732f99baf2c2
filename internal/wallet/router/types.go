package router

import (
	"encoding/json"

	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/request"
)

// Message names the operation of an envelope.
type Message string

const (
	MessageAssetsTransfer            Message = "pri(assets.transfer)"
	MessageAssetsCheckFees           Message = "pri(assets.transfer.checkFees)"
	MessageAssetsTransferEth         Message = "pri(assets.transferEth)"
	MessageAssetsTransferEthHardware Message = "pri(assets.transferEthHardware)"
	MessageAssetsApproveSign         Message = "pri(assets.transfer.approveSign)"
	MessageEthRequest                Message = "pub(eth.request)"
	MessageSubstrateSign             Message = "pub(substrate.sign)"
	MessageSigningRequests           Message = "pri(signing.requests)"
	MessageSigningApprove            Message = "pri(signing.approve)"
	MessageSigningReject             Message = "pri(signing.reject)"
	MessageNextDerivationPath        Message = "pri(accounts.nextDerivationPath)"
)

// SubscriptionNotification tags server pushed notify events.
const SubscriptionNotification = "notification"

// AllMessages lists every routed message.
func AllMessages() []Message {
	return []Message{
		MessageAssetsTransfer,
		MessageAssetsCheckFees,
		MessageAssetsTransferEth,
		MessageAssetsTransferEthHardware,
		MessageAssetsApproveSign,
		MessageEthRequest,
		MessageSubstrateSign,
		MessageSigningRequests,
		MessageSigningApprove,
		MessageSigningReject,
		MessageNextDerivationPath,
	}
}

// Privileged reports whether the message may only be sent by popup or background sessions.
func (m Message) Privileged() bool {
	return len(m) > 4 && m[:4] == "pri("
}

// Envelope is an inbound message.
type Envelope struct {
	ID      string          `json:"id"`
	Message Message         `json:"message"`
	Request json.RawMessage `json:"request,omitempty"`
}

// Reply answers an envelope, or carries a push when Subscription is set.
type Reply struct {
	ID           string     `json:"id,omitempty"`
	Subscription string     `json:"subscription,omitempty"`
	Response     any        `json:"response,omitempty"`
	Error        *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
	Data    string    `json:"data,omitempty"`
}

// ApproveParams is the approver's answer to a pending request.
type ApproveParams struct {
	ID                string               `json:"id"`
	Password          string               `json:"password,omitempty"`
	Signature         string               `json:"signature,omitempty"`
	SignedTransaction string               `json:"signedTransaction,omitempty"`
	GasSettings       *fee.GasSettings     `json:"gasSettings,omitempty"`
	Priority          fee.Priority         `json:"priority,omitempty"`
	DeviceError       *request.DeviceError `json:"deviceError,omitempty"`
}

func (p *ApproveParams) Approval() (*request.Approval, error) {
	if p.GasSettings != nil {
		if err := p.GasSettings.Validate(); err != nil {
			return nil, err
		}
	}

	return &request.Approval{
		Credential:        keyring.Credential{Password: p.Password},
		Signature:         p.Signature,
		SignedTransaction: p.SignedTransaction,
		GasSettings:       p.GasSettings,
		Priority:          p.Priority,
		DeviceError:       p.DeviceError,
	}, nil
}

type RejectParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// ResolveResult is returned by approve and reject.
type ResolveResult struct {
	ID     string          `json:"id"`
	Status request.Status  `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type NextDerivationPathParams struct {
	EntryID  string         `json:"entryId"`
	Family   address.Family `json:"family"`
	Password string         `json:"password"`
}

type NextDerivationPathResult struct {
	Path string `json:"path"`
}

// EthRequest is an EIP-1193 request. EVMNetworkID selects the network of eth_sendTransaction.
type EthRequest struct {
	Method       string            `json:"method"`
	Params       []json.RawMessage `json:"params"`
	EVMNetworkID string            `json:"evmNetworkId,omitempty"`
}

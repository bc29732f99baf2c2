package request

import (
	"context"
	"encoding/json"
	"time"

	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
)

// Kind is the closed set of request kinds.
type Kind string

const (
	KindSubstrateSign            Kind = "substrate-sign"
	KindEthSign                  Kind = "eth-sign"
	KindEthSend                  Kind = "eth-send"
	KindAssetTransfer            Kind = "asset-transfer"
	KindAssetTransferHardware    Kind = "asset-transfer-hardware"
	KindAssetTransferApproveSign Kind = "asset-transfer-approve-sign"
)

func AllKinds() []Kind {
	return []Kind{
		KindSubstrateSign,
		KindEthSign,
		KindEthSend,
		KindAssetTransfer,
		KindAssetTransferHardware,
		KindAssetTransferApproveSign,
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusErrored  Status = "errored"
	StatusExpired  Status = "expired"
)

const (
	ReasonContextClosed = "context-closed"
	ReasonUserRejected  = "user-rejected"
	ReasonRejected      = "rejected"
)

// Origin identifies the requesting context.
type Origin struct {
	URL   string `json:"url"`
	TabID int    `json:"tabId,omitempty"`
}

// ErrorInfo is the persisted form of an execution error.
type ErrorInfo struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
	Data    string    `json:"data,omitempty"`
}

// Request is a pending (or resolved) ask for user authorization.
type Request struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	// Account is the normalised address the request acts for.
	Account   string          `json:"account"`
	Origin    Origin          `json:"origin"`
	SessionID string          `json:"sessionId"`
	Status    Status          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	// ResolvedAt is set when the request leaves pending.
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Err maps a terminal request to the error its originating caller observes.
func (r *Request) Err() error {
	switch r.Status {
	case StatusApproved, StatusPending:
		return nil
	case StatusRejected:
		return errs.New(errs.CodeRejected, "request rejected: %s", r.Reason)
	case StatusExpired:
		return errs.ErrExpired
	case StatusErrored:
		if r.Error == nil {
			return errs.New(errs.CodeInternal, "request failed")
		}

		return &errs.Error{Code: r.Error.Code, Message: r.Error.Message, Data: r.Error.Data}
	}

	return errs.New(errs.CodeInternal, "unknown request status %q", r.Status)
}

// DeviceError reports a hardware device refusing or failing to sign.
type DeviceError struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Name       string `json:"name,omitempty"`
	Message    string `json:"message,omitempty"`
}

const deviceStatusUserRefused = 0x6985

// UserRejected reports whether the user declined on the device.
func (e *DeviceError) UserRejected() bool {
	return e.StatusCode == deviceStatusUserRefused || e.Name == "UserRejected"
}

// Approval is what the approver supplies with an approve outcome. Credential is used for the
// duration of the resolve call and never persisted.
type Approval struct {
	Credential        keyring.Credential `json:"-"`
	Signature         string             `json:"signature,omitempty"`
	SignedTransaction string             `json:"signedTransaction,omitempty"`
	GasSettings       *fee.GasSettings   `json:"gasSettings,omitempty"`
	Priority          fee.Priority       `json:"priority,omitempty"`
	DeviceError       *DeviceError       `json:"deviceError,omitempty"`
}

// Outcome resolves a request: Approve set means approve, otherwise reject with Reason.
type Outcome struct {
	Approve *Approval
	Reason  string
}

func Approve(a *Approval) Outcome {
	if a == nil {
		a = &Approval{}
	}

	return Outcome{Approve: a}
}

func Reject(reason string) Outcome {
	if reason == "" {
		reason = ReasonRejected
	}

	return Outcome{Reason: reason}
}

// Executor performs an approved request and returns its JSON-serialisable result.
type Executor interface {
	Execute(ctx context.Context, req *Request, approval *Approval) (any, error)
}

// CreateParams describes a new request.
type CreateParams struct {
	Kind      Kind
	Payload   json.RawMessage
	Account   string
	Origin    Origin
	SessionID string
}

// Broker is the single authority for request state transitions.
type Broker interface {
	// Create validates the payload against the kind, persists the request and announces it.
	Create(ctx context.Context, p CreateParams) (string, error)

	Get(ctx context.Context, id string) (*Request, error)

	// Pending lists pending requests ordered by creation time.
	Pending(ctx context.Context) ([]*Request, error)

	// Resolve approves or rejects a pending request. Approval runs the executor; the first
	// resolve wins and later ones fail with AlreadyResolved.
	Resolve(ctx context.Context, id string, outcome Outcome) (*Request, error)

	// CancelAllFor rejects every pending request created through the session.
	CancelAllFor(ctx context.Context, sessionID string) int

	// Wait blocks until the request is terminal.
	Wait(ctx context.Context, id string) (*Request, error)

	// SweepExpired expires pending requests past their deadline.
	SweepExpired(ctx context.Context) int

	// Recover rejects pending requests persisted by a previous process.
	Recover(ctx context.Context) error

	// Run sweeps expired requests until ctx is done.
	Run(ctx context.Context)
}

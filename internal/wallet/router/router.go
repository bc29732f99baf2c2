// Package router answers port messages on behalf of a session.
package router

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/diag"
	"github/chapool/wallet-broker/internal/wallet/dispatch"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/session"
)

type Deps struct {
	Chaindata  *chaindata.Registry
	Sessions   session.Manager
	Broker     request.Broker
	Dispatcher dispatch.Dispatcher
	Keyring    keyring.Service
	Reporter   diag.Reporter
}

type Router struct {
	reg        *chaindata.Registry
	sessions   session.Manager
	broker     request.Broker
	dispatcher dispatch.Dispatcher
	keyring    keyring.Service
	reporter   diag.Reporter
}

func New(deps Deps) *Router {
	r := &Router{
		reg:        deps.Chaindata,
		sessions:   deps.Sessions,
		broker:     deps.Broker,
		dispatcher: deps.Dispatcher,
		keyring:    deps.Keyring,
		reporter:   deps.Reporter,
	}

	if r.reporter == nil {
		r.reporter = diag.NewReporter(nil)
	}

	return r
}

// Handle answers env for the session. Pub messages that create requests block until the request
// is resolved, so callers run Handle on its own goroutine per envelope.
func (r *Router) Handle(ctx context.Context, sessionID string, env *Envelope) *Reply {
	log := util.LogFromContext(ctx).With().
		Str("session_id", sessionID).
		Str("message", string(env.Message)).
		Logger()
	ctx = log.WithContext(ctx)

	resp, err := r.route(ctx, sessionID, env)
	if err != nil {
		log.Debug().Err(err).Msg("Message failed")
		return &Reply{ID: env.ID, Error: r.errorBody(ctx, env.Message, err)}
	}

	return &Reply{ID: env.ID, Response: resp}
}

func (r *Router) route(ctx context.Context, sessionID string, env *Envelope) (any, error) {
	if env.Message.Privileged() {
		if err := r.sessions.Privileged(sessionID); err != nil {
			return nil, err
		}
	}

	switch env.Message {
	case MessageAssetsTransfer:
		return r.createAndApprove(ctx, sessionID, request.KindAssetTransfer, env.Request)
	case MessageAssetsCheckFees:
		return r.checkFees(ctx, env.Request)
	case MessageAssetsTransferEth:
		return r.transferEth(ctx, sessionID, env.Request)
	case MessageAssetsTransferEthHardware:
		return r.createAndApprove(ctx, sessionID, request.KindAssetTransferHardware, env.Request)
	case MessageAssetsApproveSign:
		return r.createAndApprove(ctx, sessionID, request.KindAssetTransferApproveSign, env.Request)
	case MessageEthRequest:
		return r.ethRequest(ctx, sessionID, env.Request)
	case MessageSubstrateSign:
		return r.createAndWait(ctx, sessionID, request.KindSubstrateSign, env.Request)
	case MessageSigningRequests:
		return r.broker.Pending(ctx)
	case MessageSigningApprove:
		return r.approve(ctx, env.Request)
	case MessageSigningReject:
		return r.reject(ctx, env.Request)
	case MessageNextDerivationPath:
		return r.nextDerivationPath(ctx, env.Request)
	default:
		return nil, errs.InvalidPayload("unknown message %q", env.Message)
	}
}

func decode[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, errs.InvalidPayload("request is required")
	}

	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, errs.InvalidPayload("malformed request: %v", err)
	}

	return v, nil
}

// splitApproval moves the approver owned fields of a privileged request out of the payload, so
// the credential never reaches the stored request.
func splitApproval(raw json.RawMessage) (*request.Approval, json.RawMessage, error) {
	fields, err := decode[map[string]json.RawMessage](raw)
	if err != nil {
		return nil, nil, err
	}

	approval := &request.Approval{}
	if pw, ok := (*fields)["password"]; ok {
		if err := json.Unmarshal(pw, &approval.Credential.Password); err != nil {
			return nil, nil, errs.InvalidPayload("password must be a string")
		}
		delete(*fields, "password")
	}
	if de, ok := (*fields)["deviceError"]; ok {
		if err := json.Unmarshal(de, &approval.DeviceError); err != nil {
			return nil, nil, errs.InvalidPayload("malformed deviceError")
		}
		delete(*fields, "deviceError")
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode payload")
	}

	return approval, body, nil
}

func (r *Router) origin(sessionID string) request.Origin {
	s, err := r.sessions.Get(sessionID)
	if err != nil {
		return request.Origin{}
	}

	return request.Origin{URL: s.Origin}
}

// createAndApprove runs a privileged operation through the broker in one step.
func (r *Router) createAndApprove(ctx context.Context, sessionID string, kind request.Kind, raw json.RawMessage) (any, error) {
	approval, body, err := splitApproval(raw)
	if err != nil {
		return nil, err
	}

	id, err := r.sessions.CreateRequest(ctx, sessionID, request.CreateParams{
		Kind:    kind,
		Payload: body,
		Origin:  r.origin(sessionID),
	})
	if err != nil {
		return nil, err
	}

	req, err := r.broker.Resolve(ctx, id, request.Approve(approval))
	if err != nil {
		return nil, err
	}

	return outcomeOf(req)
}

// createAndWait creates a pending request and answers once the approver resolved it.
func (r *Router) createAndWait(ctx context.Context, sessionID string, kind request.Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, errs.InvalidPayload("request is required")
	}

	id, err := r.sessions.CreateRequest(ctx, sessionID, request.CreateParams{
		Kind:    kind,
		Payload: raw,
		Origin:  r.origin(sessionID),
	})
	if err != nil {
		return nil, err
	}

	req, err := r.broker.Wait(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status != request.StatusApproved {
		return nil, req.Err()
	}

	return req.Result, nil
}

func outcomeOf(req *request.Request) (any, error) {
	switch {
	case req.Status == request.StatusApproved:
		return req.Result, nil
	case req.Status == request.StatusRejected && req.Reason == request.ReasonUserRejected:
		return &ResolveResult{ID: req.ID, Status: req.Status, Reason: req.Reason}, nil
	default:
		return nil, req.Err()
	}
}

func (r *Router) checkFees(ctx context.Context, raw json.RawMessage) (any, error) {
	_, body, err := splitApproval(raw)
	if err != nil {
		return nil, err
	}

	decoded, err := request.DecodePayload(request.KindAssetTransfer, body)
	if err != nil {
		return nil, err
	}

	p, ok := decoded.(*request.AssetTransferPayload)
	if !ok {
		return nil, errors.Errorf("unexpected payload type %T", decoded)
	}

	return r.dispatcher.CheckFees(ctx, p)
}

func (r *Router) transferEth(ctx context.Context, sessionID string, raw json.RawMessage) (any, error) {
	head, err := decode[struct {
		TokenID string `json:"tokenId"`
	}](raw)
	if err != nil {
		return nil, err
	}

	token, err := r.reg.GetToken(head.TokenID)
	if err != nil {
		return nil, err
	}
	if !token.Type.IsEVM() {
		return nil, errs.InvalidPayload("token %s is not an EVM token", token.ID)
	}

	return r.createAndApprove(ctx, sessionID, request.KindAssetTransfer, raw)
}

func (r *Router) approve(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[ApproveParams](raw)
	if err != nil {
		return nil, err
	}

	approval, err := p.Approval()
	if err != nil {
		return nil, err
	}

	req, err := r.broker.Resolve(ctx, p.ID, request.Approve(approval))
	if err != nil {
		return nil, err
	}

	return &ResolveResult{ID: req.ID, Status: req.Status, Reason: req.Reason, Result: req.Result}, nil
}

func (r *Router) reject(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[RejectParams](raw)
	if err != nil {
		return nil, err
	}

	req, err := r.broker.Resolve(ctx, p.ID, request.Reject(p.Reason))
	if err != nil {
		return nil, err
	}

	return &ResolveResult{ID: req.ID, Status: req.Status, Reason: req.Reason}, nil
}

func (r *Router) nextDerivationPath(ctx context.Context, raw json.RawMessage) (any, error) {
	p, err := decode[NextDerivationPathParams](raw)
	if err != nil {
		return nil, err
	}
	if p.EntryID == "" {
		return nil, errs.InvalidPayload("entryId is required")
	}

	path, err := r.keyring.NextDerivationPath(ctx, p.EntryID, p.Family, keyring.Credential{Password: p.Password})
	if err != nil {
		return nil, err
	}

	return &NextDerivationPathResult{Path: path}, nil
}

func (r *Router) errorBody(ctx context.Context, msg Message, err error) *ErrorBody {
	if !errs.IsClassified(err) && !errors.Is(err, context.Canceled) {
		r.reporter.Report(ctx, string(msg), err)
	}

	return ErrorBodyOf(err)
}

// ErrorBodyOf converts err to its wire form. Unclassified errors are not described to callers.
func ErrorBodyOf(err error) *ErrorBody {
	var e *errs.Error
	if errors.As(err, &e) {
		return &ErrorBody{Code: e.Code, Message: e.Message, Data: e.Data}
	}

	return &ErrorBody{Code: errs.CodeInternal, Message: "internal error"}
}

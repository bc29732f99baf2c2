package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

type verdict int

const (
	// accepted: the node took the transaction, or already knows it.
	accepted verdict = iota
	// rejected: the node answered with an error, the transaction never entered the pool.
	rejected
	// ambiguous: no answer, the transaction may or may not be in the pool.
	ambiguous
)

func (v verdict) String() string {
	switch v {
	case accepted:
		return "accepted"
	case rejected:
		return "rejected"
	case ambiguous:
		return "ambiguous"
	}

	return "unknown"
}

// classify sorts a broadcast error. Only JSON-RPC error responses are definitive.
func classify(err error) verdict {
	if err == nil {
		return accepted
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return ambiguous
	}

	msg := strings.ToLower(rpcErr.Error())
	if strings.Contains(msg, "already known") || strings.Contains(msg, "already imported") {
		return accepted
	}

	return rejected
}

// staleNonce reports node errors meaning the local nonce is behind the chain.
func staleNonce(err error) bool {
	msg := strings.ToLower(err.Error())
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		msg += " " + strings.ToLower(errorData(dataErr.ErrorData()))
	}

	return strings.Contains(msg, "nonce too low") || strings.Contains(msg, "outdated") || strings.Contains(msg, "stale")
}

// nodeError surfaces the node's message, preferring its data string.
func nodeError(err error) error {
	var rpcErr rpc.Error
	message := err.Error()
	if errors.As(err, &rpcErr) {
		message = rpcErr.Error()
	}

	data := ""
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		data = errorData(dataErr.ErrorData())
	}

	out := errs.New(errs.CodeBroadcastFailed, "%s", message)
	if data != "" {
		out = errs.WithData(out, data)
	}

	return out
}

func errorData(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(raw)
	}
}

// failFunc quarantines the endpoint a broadcast went through.
type failFunc func(cause error)

func (d *dispatcher) failEVM(networkID string, client provider.EVMClient) failFunc {
	return func(cause error) { d.pool.FailEVM(networkID, client, cause) }
}

func (d *dispatcher) failSubstrate(chainID string, sub *provider.Substrate) failFunc {
	return func(cause error) { d.pool.FailSubstrate(chainID, sub, cause) }
}

// reportEndpoint blames the endpoint for an ambiguous broadcast unless the caller's own context
// ended it.
func reportEndpoint(ctx context.Context, fail failFunc, sendErr error) {
	if ctx.Err() != nil || errors.Is(sendErr, context.Canceled) {
		return
	}
	fail(sendErr)
}

// settle applies the broadcast verdict to an allocated nonce. A nil return means the transaction
// counts as sent.
func (d *dispatcher) settle(ctx context.Context, family provider.Family, networkID string, fail failFunc, key nonce.Key, n uint64, sendErr error) error {
	v := classify(sendErr)
	d.metrics.Broadcast(string(family), v.String())

	switch v {
	case accepted:
		return d.nonces.Commit(key, n)
	case rejected:
		if err := d.nonces.Release(key, n); err != nil {
			return err
		}
		if staleNonce(sendErr) {
			d.nonces.Forget(key)
		}
		util.LogFromContext(ctx).Warn().Err(sendErr).Str("network", networkID).Uint64("nonce", n).Msg("Node rejected transaction")

		return nodeError(sendErr)
	case ambiguous:
		// The transaction may be in the pool: the nonce stays consumed.
		if err := d.nonces.Commit(key, n); err != nil {
			return err
		}
		reportEndpoint(ctx, fail, sendErr)
		d.reporter.Report(ctx, "dispatch.broadcast", sendErr)

		return errs.ErrBroadcastFailed
	}

	return errs.ErrBroadcastFailed
}

// settleExternal is settle for transactions whose nonce was chosen by an external signer.
func (d *dispatcher) settleExternal(ctx context.Context, family provider.Family, fail failFunc, key nonce.Key, n uint64, sendErr error) error {
	v := classify(sendErr)
	d.metrics.Broadcast(string(family), v.String())

	switch v {
	case accepted:
		d.nonces.Observe(key, n)
		return nil
	case rejected:
		if staleNonce(sendErr) {
			d.nonces.Forget(key)
		}

		return nodeError(sendErr)
	case ambiguous:
		d.nonces.Observe(key, n)
		reportEndpoint(ctx, fail, sendErr)
		d.reporter.Report(ctx, "dispatch.broadcast", sendErr)

		return errs.ErrBroadcastFailed
	}

	return errs.ErrBroadcastFailed
}

// track hands a sent transaction to the watcher. Failing to track never fails the transfer.
func (d *dispatcher) track(ctx context.Context, rec *watcher.Record) {
	if d.tracker == nil {
		return
	}

	mode := watcher.ModePoll
	if rec.Family == provider.FamilyEVM {
		mode = d.mode
	}

	if err := d.tracker.Watch(ctx, rec, mode); err != nil {
		d.reporter.Report(ctx, "dispatch.track", err)
	}
}

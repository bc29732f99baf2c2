package request

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/diag"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/notify"
)

const defaultSweepInterval = 10 * time.Second

type Option func(*broker)

// WithTTL expires pending requests after d. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(b *broker) { b.ttl = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(b *broker) { b.sweepInterval = d }
}

func WithClock(c time2.Clock) Option {
	return func(b *broker) { b.clock = c }
}

func WithNotifier(n notify.Sink) Option {
	return func(b *broker) { b.notifier = n }
}

func WithReporter(r diag.Reporter) Option {
	return func(b *broker) { b.reporter = r }
}

func WithMetrics(m *metrics.Service) Option {
	return func(b *broker) { b.metrics = m }
}

// entry is the in-memory state of a pending request. mu serialises every transition.
type entry struct {
	mu      sync.Mutex
	req     *Request
	claimed bool
	done    chan struct{}
}

func (e *entry) snapshot() *Request {
	cp := *e.req

	return &cp
}

type broker struct {
	db       storage.DB
	executor Executor

	ttl           time.Duration
	sweepInterval time.Duration
	clock         time2.Clock
	notifier      notify.Sink
	reporter      diag.Reporter
	metrics       *metrics.Service
	log           zerolog.Logger

	// mu guards the maps only and is never held while taking an entry lock.
	mu        sync.Mutex
	entries   map[string]*entry
	bySession map[string]map[string]struct{}
}

// NewBroker stores requests in db, which is expected to be a dedicated keyspace.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewBroker(db storage.DB, executor Executor, opts ...Option) Broker {
	b := &broker{
		db:            db,
		executor:      executor,
		sweepInterval: defaultSweepInterval,
		clock:         time2.DefaultClock,
		log:           util.ComponentLogger("request"),
		entries:       make(map[string]*entry),
		bySession:     make(map[string]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.reporter == nil {
		b.reporter = diag.NewReporter(b.metrics)
	}

	return b
}

func (b *broker) Create(ctx context.Context, p CreateParams) (string, error) {
	if p.SessionID == "" {
		return "", errs.InvalidPayload("request must be created through a session")
	}

	pl, err := decodePayload(p.Kind, p.Payload)
	if err != nil {
		return "", err
	}

	account, err := address.Normalize(pl.account())
	if err != nil {
		return "", errs.InvalidPayload("invalid account address %q", pl.account())
	}
	if p.Account != "" {
		given, err := address.Normalize(p.Account)
		if err != nil || given != account {
			return "", errs.InvalidPayload("account %s does not match the payload", p.Account)
		}
	}

	now := b.clock.Now().UTC()
	req := &Request{
		ID:        uuid.NewString(),
		Kind:      p.Kind,
		Payload:   p.Payload,
		Account:   account,
		Origin:    p.Origin,
		SessionID: p.SessionID,
		Status:    StatusPending,
		CreatedAt: now,
	}
	if b.ttl > 0 {
		expires := now.Add(b.ttl)
		req.ExpiresAt = &expires
	}

	if err := b.put(req); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.entries[req.ID] = &entry{req: req, done: make(chan struct{})}
	ids, ok := b.bySession[req.SessionID]
	if !ok {
		ids = make(map[string]struct{})
		b.bySession[req.SessionID] = ids
	}
	ids[req.ID] = struct{}{}
	b.mu.Unlock()

	b.metrics.RequestCreated(string(req.Kind))
	util.LogFromContext(ctx).Info().
		Str("request_id", req.ID).
		Str("kind", string(req.Kind)).
		Str("origin", req.Origin.URL).
		Msg("Request created")

	if b.notifier != nil {
		b.notifier.Notify(notify.Event{Type: notify.EventRequestCreated, RequestID: req.ID, At: now})
	}

	return req.ID, nil
}

func (b *broker) lookup(id string) (*entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[id]

	return e, ok
}

func (b *broker) Get(_ context.Context, id string) (*Request, error) {
	if e, ok := b.lookup(id); ok {
		e.mu.Lock()
		defer e.mu.Unlock()

		return e.snapshot(), nil
	}

	return b.load(id)
}

func (b *broker) Pending(_ context.Context) ([]*Request, error) {
	b.mu.Lock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	out := make([]*Request, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.req.Status == StatusPending {
			out = append(out, e.snapshot())
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (b *broker) Resolve(ctx context.Context, id string, outcome Outcome) (*Request, error) {
	e, ok := b.lookup(id)
	if !ok {
		if _, err := b.load(id); err != nil {
			return nil, err
		}

		return nil, errs.ErrAlreadyResolved
	}

	e.mu.Lock()
	if e.req.Status != StatusPending || e.claimed {
		e.mu.Unlock()
		return nil, errs.ErrAlreadyResolved
	}

	if outcome.Approve == nil {
		defer e.mu.Unlock()
		b.finishLocked(ctx, e, StatusRejected, outcome.Reason)

		return e.snapshot(), nil
	}

	// Claim the request so that cancel and expiry lose against this approval while the
	// executor runs outside the lock.
	e.claimed = true
	req := e.snapshot()
	e.mu.Unlock()

	result, execErr := b.executor.Execute(ctx, req, outcome.Approve)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case execErr == nil:
		raw, err := json.Marshal(result)
		if err != nil {
			execErr = errors.Wrap(err, "failed to encode result")
			b.fail(ctx, e, execErr)

			break
		}
		e.req.Result = raw
		b.finishLocked(ctx, e, StatusApproved, "")
	case errors.Is(execErr, errs.ErrUserRejected):
		// A rejection on the device ends the flow without an error.
		execErr = nil
		b.finishLocked(ctx, e, StatusRejected, ReasonUserRejected)
	default:
		b.fail(ctx, e, execErr)
	}

	return e.snapshot(), execErr
}

func (b *broker) fail(ctx context.Context, e *entry, err error) {
	info := &ErrorInfo{Code: errs.CodeOf(err), Message: err.Error(), Data: errs.DataOf(err)}

	var classified *errs.Error
	if errors.As(err, &classified) {
		info.Message = classified.Message
	} else {
		b.reporter.Report(ctx, "request.resolve", err)
	}

	e.req.Error = info
	b.finishLocked(ctx, e, StatusErrored, "")
}

// finishLocked moves the request to a terminal status. Callers hold e.mu.
func (b *broker) finishLocked(ctx context.Context, e *entry, status Status, reason string) {
	now := b.clock.Now().UTC()
	e.req.Status = status
	e.req.Reason = reason
	e.req.ResolvedAt = &now

	if err := b.put(e.req); err != nil {
		util.LogFromContext(ctx).Error().Err(err).Str("request_id", e.req.ID).Msg("Failed to persist resolved request")
	}

	b.mu.Lock()
	delete(b.entries, e.req.ID)
	if ids, ok := b.bySession[e.req.SessionID]; ok {
		delete(ids, e.req.ID)
		if len(ids) == 0 {
			delete(b.bySession, e.req.SessionID)
		}
	}
	b.mu.Unlock()

	close(e.done)
	b.metrics.RequestResolved(string(e.req.Kind), string(status))

	util.LogFromContext(ctx).Info().
		Str("request_id", e.req.ID).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("Request resolved")
}

func (b *broker) CancelAllFor(ctx context.Context, sessionID string) int {
	b.mu.Lock()
	entries := make([]*entry, 0, len(b.bySession[sessionID]))
	for id := range b.bySession[sessionID] {
		entries = append(entries, b.entries[id])
	}
	b.mu.Unlock()

	cancelled := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.req.Status == StatusPending && !e.claimed {
			b.finishLocked(ctx, e, StatusRejected, ReasonContextClosed)
			cancelled++
		}
		e.mu.Unlock()
	}

	return cancelled
}

func (b *broker) Wait(ctx context.Context, id string) (*Request, error) {
	e, ok := b.lookup(id)
	if !ok {
		return b.load(id)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.snapshot(), nil
}

func (b *broker) SweepExpired(ctx context.Context) int {
	now := b.clock.Now()

	b.mu.Lock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	expired := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.req.Status == StatusPending && !e.claimed && e.req.ExpiresAt != nil && !now.Before(*e.req.ExpiresAt) {
			b.finishLocked(ctx, e, StatusExpired, "")
			expired++
		}
		e.mu.Unlock()
	}

	return expired
}

func (b *broker) Recover(ctx context.Context) error {
	var stale []*Request
	err := b.db.ForEach(nil, func(_, value []byte) error {
		var req Request
		if err := json.Unmarshal(value, &req); err != nil {
			return errors.Wrap(err, "failed to decode request")
		}
		if req.Status == StatusPending {
			stale = append(stale, &req)
		}

		return nil
	})
	if err != nil {
		return err
	}

	now := b.clock.Now().UTC()
	for _, req := range stale {
		req.Status = StatusRejected
		req.Reason = ReasonContextClosed
		req.ResolvedAt = &now
		if err := b.put(req); err != nil {
			return err
		}
		b.metrics.RequestResolved(string(req.Kind), string(req.Status))
	}

	if len(stale) > 0 {
		util.LogFromContext(ctx).Info().Int("requests", len(stale)).Msg("Rejected requests left pending by a previous run")
	}

	return nil
}

func (b *broker) Run(ctx context.Context) {
	if b.ttl <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.SweepExpired(ctx); n > 0 {
				b.log.Debug().Int("expired", n).Msg("Expired pending requests")
			}
		}
	}
}

func (b *broker) load(id string) (*Request, error) {
	raw, err := b.db.Get([]byte(id))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, errs.NotFound("request", id)
		}

		return nil, errors.Wrap(err, "failed to load request")
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.Wrap(err, "failed to decode request")
	}

	return &req, nil
}

func (b *broker) put(req *Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode request")
	}

	return errors.Wrap(b.db.Put([]byte(req.ID), raw), "failed to store request")
}

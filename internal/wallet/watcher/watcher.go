package watcher

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/notify"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

const (
	defaultPollInterval = 4 * time.Second
	defaultMaxAttempts  = 8
	defaultMaxBackoff   = time.Minute
	defaultBlockWindow  = 64
)

type Option func(*watcher)

func WithPollInterval(d time.Duration) Option {
	return func(w *watcher) { w.pollInterval = d }
}

// WithMaxAttempts bounds consecutive provider failures before a record is left in broadcast.
func WithMaxAttempts(n int) Option {
	return func(w *watcher) { w.maxAttempts = n }
}

func WithMaxBackoff(d time.Duration) Option {
	return func(w *watcher) { w.maxBackoff = d }
}

// WithBlockWindow is the number of substrate blocks after which a missing extrinsic is dropped.
func WithBlockWindow(n uint64) Option {
	return func(w *watcher) { w.blockWindow = n }
}

func WithNotifier(n notify.Sink) Option {
	return func(w *watcher) { w.notifier = n }
}

// WithNonces lets dropped transactions reset their nonce slot.
func WithNonces(r nonce.Registry) Option {
	return func(w *watcher) { w.nonces = r }
}

func WithClock(c time2.Clock) Option {
	return func(w *watcher) { w.clock = c }
}

func WithMetrics(m *metrics.Service) Option {
	return func(w *watcher) { w.metrics = m }
}

type watcher struct {
	db   storage.DB
	pool provider.Pool

	pollInterval time.Duration
	maxAttempts  int
	maxBackoff   time.Duration
	blockWindow  uint64
	notifier     notify.Sink
	nonces       nonce.Registry
	clock        time2.Clock
	metrics      *metrics.Service
	log          zerolog.Logger

	// mu guards record writes and the tracking set.
	mu       sync.Mutex
	tracking map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher stores records in db, which is expected to be a dedicated keyspace.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewWatcher(db storage.DB, pool provider.Pool, opts ...Option) Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{
		db:           db,
		pool:         pool,
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
		maxBackoff:   defaultMaxBackoff,
		blockWindow:  defaultBlockWindow,
		clock:        time2.DefaultClock,
		log:          util.ComponentLogger("watcher"),
		tracking:     make(map[string]struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func recordKey(hash string) []byte {
	return []byte(strings.ToLower(hash))
}

func (w *watcher) Watch(_ context.Context, rec *Record, mode Mode) error {
	if rec.Hash == "" || rec.NetworkID == "" {
		return errs.InvalidPayload("transaction record needs a hash and a network")
	}

	now := w.clock.Now().UTC()
	rec.Status = StatusBroadcast
	rec.CreatedAt = now
	rec.UpdatedAt = now

	w.mu.Lock()
	err := w.put(rec)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	w.track(rec, mode)

	return nil
}

func (w *watcher) Get(_ context.Context, hash string) (*Record, error) {
	raw, err := w.db.Get(recordKey(hash))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, errs.NotFound("transaction", hash)
		}

		return nil, errors.Wrap(err, "failed to load transaction record")
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to decode transaction record")
	}

	return &rec, nil
}

func (w *watcher) Recheck(ctx context.Context, hash string) error {
	rec, err := w.Get(ctx, hash)
	if err != nil {
		return err
	}
	if rec.Status.Terminal() {
		return nil
	}

	w.track(rec, ModePoll)

	return nil
}

func (w *watcher) Resume(_ context.Context) error {
	var pending []*Record
	err := w.db.ForEach(nil, func(_, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrap(err, "failed to decode transaction record")
		}
		if rec.Status == StatusBroadcast {
			pending = append(pending, &rec)
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, rec := range pending {
		w.track(rec, ModePoll)
	}
	w.log.Info().Int("records", len(pending)).Msg("Resumed watching broadcast transactions")

	return nil
}

func (w *watcher) Close() {
	w.cancel()
	w.wg.Wait()
}

// track starts a tracking goroutine unless one is already running for the record.
func (w *watcher) track(rec *Record, mode Mode) {
	key := string(recordKey(rec.Hash))

	w.mu.Lock()
	if _, ok := w.tracking[key]; ok || w.ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.tracking[key] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.tracking, key)
			w.mu.Unlock()
		}()

		log := w.log.With().Str("hash", rec.Hash).Str("network", rec.NetworkID).Logger()

		var err error
		switch rec.Family {
		case provider.FamilyEVM:
			err = w.trackEVM(w.ctx, rec, mode)
		case provider.FamilySubstrate:
			err = w.trackSubstrate(w.ctx, rec)
		default:
			err = errors.Errorf("unknown family %q", rec.Family)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("Stopped watching transaction, record left in broadcast")
		}
	}()
}

// finish moves rec to a terminal status, persists it and notifies.
func (w *watcher) finish(rec *Record, status Status) error {
	w.mu.Lock()
	rec.Status = status
	rec.UpdatedAt = w.clock.Now().UTC()
	err := w.put(rec)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	w.metrics.WatcherStatus(string(status))
	w.log.Info().Str("hash", rec.Hash).Str("status", string(status)).Msg("Transaction reached terminal status")

	switch status {
	case StatusConfirmed:
		w.notify(rec, notify.EventTransferConfirmed)
	case StatusFailed:
		w.notify(rec, notify.EventTransferFailed)
	case StatusDropped:
		if w.nonces != nil {
			w.nonces.Forget(nonce.NewKey(rec.From, rec.NetworkID))
		}
	case StatusBroadcast:
	}

	return nil
}

func (w *watcher) notify(rec *Record, typ notify.EventType) {
	if w.notifier == nil || rec.TransferInfo == nil {
		return
	}

	info := rec.TransferInfo
	w.notifier.Notify(notify.Event{
		Type:      typ,
		Hash:      rec.Hash,
		NetworkID: rec.NetworkID,
		Amount:    notify.FormatAmount(info.Amount, info.Decimals),
		Symbol:    info.Symbol,
		To:        info.To,
		At:        rec.UpdatedAt,
	})
}

func (w *watcher) put(rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode transaction record")
	}

	return errors.Wrap(w.db.Put(recordKey(rec.Hash), raw), "failed to store transaction record")
}

// backoff tracks consecutive provider failures.
type backoff struct {
	attempts int
	max      int
	delay    time.Duration
	base     time.Duration
	cap      time.Duration
}

func (w *watcher) newBackoff() *backoff {
	return &backoff{max: w.maxAttempts, base: w.pollInterval, delay: w.pollInterval, cap: w.maxBackoff}
}

// fail records a failure and returns the delay before the next attempt, or false when attempts
// are exhausted.
func (b *backoff) fail() (time.Duration, bool) {
	b.attempts++
	if b.attempts >= b.max {
		return 0, false
	}

	d := b.delay
	b.delay *= 2
	if b.delay > b.cap {
		b.delay = b.cap
	}

	return d, true
}

func (b *backoff) reset() time.Duration {
	b.attempts = 0
	b.delay = b.base

	return b.base
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

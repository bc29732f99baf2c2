package nonce

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

type slot struct {
	// sem is held from Allocate until Commit or Release.
	sem chan struct{}

	mu       sync.Mutex
	seeded   bool
	next     uint64
	inflight *uint64
}

type registry struct {
	mu      sync.Mutex
	slots   map[Key]*slot
	metrics *metrics.Service
	log     zerolog.Logger
}

// NewRegistry creates an in-memory nonce registry.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewRegistry(m *metrics.Service) Registry {
	return &registry{
		slots:   make(map[Key]*slot),
		metrics: m,
		log:     util.ComponentLogger("nonce"),
	}
}

func (r *registry) slot(key Key) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		r.slots[key] = s
	}

	return s
}

func (r *registry) Allocate(ctx context.Context, key Key, src Source) (uint64, error) {
	s := r.slot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return 0, errors.Wrap(ctx.Err(), "waiting for nonce slot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		onChain, err := src.PendingNonceAt(ctx, common.HexToAddress(key.Address))
		if err != nil {
			<-s.sem
			return 0, errors.Wrap(err, "failed to read pending nonce")
		}

		s.next = onChain
		s.seeded = true

		r.log.Debug().Str("key", key.String()).Uint64("nonce", s.next).Msg("Seeded nonce slot")
	}

	n := s.next
	s.next++
	s.inflight = &n

	r.metrics.NonceAllocated(key.NetworkID)

	return n, nil
}

func (r *registry) Commit(key Key, nonce uint64) error {
	return r.finish(key, nonce, false)
}

func (r *registry) Release(key Key, nonce uint64) error {
	return r.finish(key, nonce, true)
}

func (r *registry) finish(key Key, nonce uint64, rollback bool) error {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()

	if !ok {
		return errs.New(errs.CodeInvariantViolation, "no nonce slot for %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == nil || *s.inflight != nonce {
		return errs.New(errs.CodeInvariantViolation, "nonce %d is not the in-flight allocation for %s", nonce, key)
	}

	if rollback {
		s.next = nonce
		r.metrics.NonceReleased(key.NetworkID)
		r.log.Debug().Str("key", key.String()).Uint64("nonce", nonce).Msg("Released nonce")
	}
	s.inflight = nil
	<-s.sem

	return nil
}

func (r *registry) Peek(ctx context.Context, key Key, src Source) (uint64, error) {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()

	if ok {
		s.mu.Lock()
		seeded, next := s.seeded, s.next
		s.mu.Unlock()

		if seeded {
			return next, nil
		}
	}

	n, err := src.PendingNonceAt(ctx, common.HexToAddress(key.Address))
	if err != nil {
		return 0, errors.Wrap(err, "failed to read pending nonce")
	}

	return n, nil
}

func (r *registry) Observe(key Key, nonce uint64) {
	s := r.slot(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seeded && nonce+1 > s.next {
		s.next = nonce + 1
	}
}

func (r *registry) Forget(key Key) {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()

	if !ok {
		return
	}

	// The slot is kept so waiters stay serialised on the same semaphore.
	s.mu.Lock()
	s.seeded = false
	s.mu.Unlock()
}

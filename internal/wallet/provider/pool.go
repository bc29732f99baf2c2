package provider

import (
	"context"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

const (
	defaultHealthTTL   = 30 * time.Second
	defaultQuarantine  = time.Minute
	defaultDialTimeout = 10 * time.Second
)

// conn is the live connection of an endpoint. Exactly one of its clients is set.
type conn struct {
	evm EVMClient
	sub RPCCaller
}

func (c conn) live() bool {
	return c.evm != nil || c.sub != nil
}

// same reports whether c and o are the same connection.
func (c conn) same(o conn) bool {
	return sameClient(c.evm, o.evm) && sameClient(c.sub, o.sub)
}

func (c conn) close() {
	if cl, ok := c.evm.(io.Closer); ok {
		_ = cl.Close()
	} else if cl, ok := c.evm.(interface{ Close() }); ok {
		cl.Close()
	}
	if c.sub != nil {
		c.sub.Close()
	}
}

func sameClient(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}

	return a == b
}

type endpoint struct {
	url       string
	conn      conn
	checkedAt time.Time
	failedAt  time.Time
}

type network struct {
	id     string
	family Family
	// expect is the chain id (evm) or genesis hash (substrate) endpoints must report.
	expect string

	// endpoints never changes after construction; the fields of its entries are guarded by mu.
	mu        sync.Mutex
	endpoints []*endpoint
	current   int
}

type pool struct {
	evm       map[string]*network
	substrate map[string]*network

	evmDialer       EVMDialer
	substrateDialer SubstrateDialer
	healthTTL       time.Duration
	quarantine      time.Duration
	dialTimeout     time.Duration
	clock           time2.Clock
	metrics         *metrics.Service
	log             zerolog.Logger
}

type Option func(*pool)

func WithEVMDialer(d EVMDialer) Option {
	return func(p *pool) { p.evmDialer = d }
}

func WithSubstrateDialer(d SubstrateDialer) Option {
	return func(p *pool) { p.substrateDialer = d }
}

func WithHealthTTL(d time.Duration) Option {
	return func(p *pool) { p.healthTTL = d }
}

func WithQuarantine(d time.Duration) Option {
	return func(p *pool) { p.quarantine = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(p *pool) { p.dialTimeout = d }
}

func WithClock(c time2.Clock) Option {
	return func(p *pool) { p.clock = c }
}

func WithMetrics(m *metrics.Service) Option {
	return func(p *pool) { p.metrics = m }
}

func dialEVM(ctx context.Context, url string) (EVMClient, error) {
	return ethclient.DialContext(ctx, url)
}

func dialSubstrate(ctx context.Context, url string) (RPCCaller, error) {
	return rpc.DialContext(ctx, url)
}

// NewPool builds the endpoint lists of every network in reg. Connections are dialled lazily.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewPool(reg *chaindata.Registry, opts ...Option) Pool {
	p := &pool{
		evm:             make(map[string]*network),
		substrate:       make(map[string]*network),
		evmDialer:       dialEVM,
		substrateDialer: dialSubstrate,
		healthTTL:       defaultHealthTTL,
		quarantine:      defaultQuarantine,
		dialTimeout:     defaultDialTimeout,
		clock:           time2.DefaultClock,
		log:             util.ComponentLogger("provider"),
	}

	for _, opt := range opts {
		opt(p)
	}

	for _, n := range reg.EVMNetworks() {
		p.evm[n.ID] = newNetwork(n.ID, FamilyEVM, n.ID, n.RPCs)
	}
	for _, c := range reg.Chains() {
		p.substrate[c.ID] = newNetwork(c.ID, FamilySubstrate, c.GenesisHash, c.RPCs)
	}

	return p
}

func newNetwork(id string, family Family, expect string, urls []string) *network {
	n := &network{id: id, family: family, expect: expect}
	for _, url := range urls {
		n.endpoints = append(n.endpoints, &endpoint{url: url})
	}

	return n
}

func (p *pool) EVM(ctx context.Context, networkID string) (EVMClient, error) {
	n, ok := p.evm[networkID]
	if !ok {
		return nil, errs.New(errs.CodeNoProviderForNetwork, "no provider configured for evm network %s", networkID)
	}

	c, err := p.healthy(ctx, n)
	if err != nil {
		return nil, err
	}

	return c.evm, nil
}

func (p *pool) Substrate(ctx context.Context, chainID string) (*Substrate, error) {
	n, ok := p.substrate[chainID]
	if !ok {
		return nil, errs.New(errs.CodeNoProviderForNetwork, "no provider configured for chain %s", chainID)
	}

	c, err := p.healthy(ctx, n)
	if err != nil {
		return nil, err
	}

	return NewSubstrate(c.sub), nil
}

func (p *pool) FailEVM(networkID string, client EVMClient, cause error) {
	if n, ok := p.evm[networkID]; ok && client != nil {
		p.fail(n, conn{evm: client}, cause)
	}
}

func (p *pool) FailSubstrate(chainID string, sub *Substrate, cause error) {
	if n, ok := p.substrate[chainID]; ok && sub != nil && sub.rpc != nil {
		p.fail(n, conn{sub: sub.rpc}, cause)
	}
}

// fail quarantines the endpoint still holding c. Reports about replaced connections are dropped.
func (p *pool) fail(n *network, c conn, cause error) {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, errs.ErrNoProviderForNetwork) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ep := range n.endpoints {
		if ep.conn.live() && ep.conn.same(c) {
			p.quarantineEndpoint(n, ep, cause)
			return
		}
	}

	p.log.Debug().Str("network", n.id).Err(cause).Msg("Ignoring failure of a replaced connection")
}

// healthy returns the first usable connection starting at the current endpoint.
func (p *pool) healthy(ctx context.Context, n *network) (conn, error) {
	n.mu.Lock()
	start := n.current
	n.mu.Unlock()

	size := len(n.endpoints)
	var lastErr error

	for i := 0; i < size; i++ {
		idx := (start + i) % size

		c, err := p.use(ctx, n, idx)
		if err == nil {
			return c, nil
		}
		if ctx.Err() != nil {
			return conn{}, errs.Wrap(ctx.Err(), errs.CodeNoProviderForNetwork, "no provider reachable for network "+n.id)
		}
		if !errors.Is(err, errQuarantined) {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("all endpoints quarantined")
	}

	return conn{}, errs.Wrap(lastErr, errs.CodeNoProviderForNetwork, "no provider reachable for network "+n.id)
}

var errQuarantined = errors.New("endpoint quarantined")

// use returns a checked connection of the endpoint at idx. Dialling and health checks run
// without n.mu held.
func (p *pool) use(ctx context.Context, n *network, idx int) (conn, error) {
	ep := n.endpoints[idx]

	n.mu.Lock()
	now := p.clock.Now()
	if !ep.failedAt.IsZero() && now.Sub(ep.failedAt) < p.quarantine {
		n.mu.Unlock()
		return conn{}, errQuarantined
	}
	c := ep.conn
	if c.live() && now.Sub(ep.checkedAt) < p.healthTTL {
		n.current = idx
		n.mu.Unlock()
		return c, nil
	}
	n.mu.Unlock()

	dialled := !c.live()
	if dialled {
		var err error
		if c, err = p.dial(ctx, n, ep.url); err != nil {
			p.failDial(ctx, n, ep, conn{}, err)
			return conn{}, err
		}
	}

	if err := p.check(ctx, n, c); err != nil {
		expected := c
		if dialled {
			c.close()
			expected = conn{}
		}
		p.failDial(ctx, n, ep, expected, err)
		return conn{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case dialled && ep.conn.live():
		// connected concurrently, keep the installed connection
		c.close()
		c = ep.conn
	case dialled:
		ep.conn = c
	case !ep.conn.same(c):
		if !ep.conn.live() {
			return conn{}, errQuarantined
		}
		c = ep.conn
	}

	ep.checkedAt = p.clock.Now()
	ep.failedAt = time.Time{}
	n.current = idx

	return c, nil
}

// failDial quarantines ep after a failed dial or health check, unless its connection changed
// meanwhile or the caller gave up.
func (p *pool) failDial(ctx context.Context, n *network, ep *endpoint, expected conn, cause error) {
	if ctx.Err() != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !ep.conn.same(expected) {
		return
	}
	p.quarantineEndpoint(n, ep, cause)
}

func (p *pool) dial(ctx context.Context, n *network, url string) (conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	var (
		c   conn
		err error
	)
	switch n.family {
	case FamilyEVM:
		c.evm, err = p.evmDialer(dialCtx, url)
	case FamilySubstrate:
		c.sub, err = p.substrateDialer(dialCtx, url)
	}
	if err != nil {
		return conn{}, errors.Wrapf(err, "failed to dial %s", url)
	}

	return c, nil
}

func (p *pool) check(ctx context.Context, n *network, c conn) error {
	checkCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	switch n.family {
	case FamilyEVM:
		chainID, err := c.evm.ChainID(checkCtx)
		if err != nil {
			return errors.Wrap(err, "failed to get chain ID")
		}
		if n.expect != "" && chainID.String() != n.expect {
			return errors.Errorf("endpoint serves chain %s, expected %s", chainID, n.expect)
		}
	case FamilySubstrate:
		genesis, err := NewSubstrate(c.sub).GenesisHash(checkCtx)
		if err != nil {
			return errors.Wrap(err, "failed to get genesis hash")
		}
		if n.expect != "" && !strings.EqualFold(genesis, n.expect) {
			return errors.Errorf("endpoint serves genesis %s, expected %s", genesis, n.expect)
		}
	}

	return nil
}

// quarantineEndpoint must be called with n.mu held.
func (p *pool) quarantineEndpoint(n *network, ep *endpoint, cause error) {
	p.log.Warn().
		Str("network", n.id).
		Str("url", ep.url).
		Err(cause).
		Msg("RPC endpoint failed, quarantining")

	ep.failedAt = p.clock.Now()
	ep.conn.close()
	ep.conn = conn{}

	if len(n.endpoints) > 1 && n.endpoints[n.current] == ep {
		n.current = (n.current + 1) % len(n.endpoints)
	}
	p.metrics.ProviderFailover(string(n.family) + ":" + n.id)
}

func (p *pool) Close() {
	for _, group := range []map[string]*network{p.evm, p.substrate} {
		for _, n := range group {
			n.mu.Lock()
			for _, ep := range n.endpoints {
				ep.conn.close()
				ep.conn = conn{}
			}
			n.mu.Unlock()
		}
	}
}

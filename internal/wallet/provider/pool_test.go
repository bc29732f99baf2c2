package provider_test

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

type fakeEVM struct {
	provider.EVMClient
	url     string
	chainID int64
	err     error
	// block holds ChainID calls until closed.
	block    chan struct{}
	inflight atomic.Int32
}

func (f *fakeEVM) ChainID(_ context.Context) (*big.Int, error) {
	if f.block != nil {
		f.inflight.Add(1)
		defer f.inflight.Add(-1)
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.chainID), nil
}

type dialRecorder struct {
	mu      sync.Mutex
	clients map[string]*fakeEVM
	dials   map[string]int
}

func (d *dialRecorder) count(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[url]
}

func (d *dialRecorder) dial(_ context.Context, url string) (provider.EVMClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[url]++
	c, ok := d.clients[url]
	if !ok {
		return nil, errors.Errorf("connection refused: %s", url)
	}
	return c, nil
}

func newRecorder(clients ...*fakeEVM) *dialRecorder {
	d := &dialRecorder{clients: map[string]*fakeEVM{}, dials: map[string]int{}}
	for _, c := range clients {
		d.clients[c.url] = c
	}
	return d
}

func TestPoolRejectsWrongChain(t *testing.T) {
	reg := test.NewTestChaindata(t)
	rec := newRecorder(&fakeEVM{url: "inproc://simulated", chainID: 1})

	pool := provider.NewPool(reg, provider.WithEVMDialer(rec.dial))
	defer pool.Close()

	_, err := pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNoProviderForNetwork)
}

func TestPoolFailsOverToNextEndpoint(t *testing.T) {
	reg, err := chaindata.New(nil, []*chaindata.EVMNetwork{{
		ID:   "1",
		Name: "Ethereum",
		RPCs: []string{"https://down.example", "https://flaky.example", "https://up.example"},
	}}, nil)
	require.NoError(t, err)

	up := &fakeEVM{url: "https://up.example", chainID: 1}
	rec := newRecorder(&fakeEVM{url: "https://flaky.example", err: errors.New("503 Service Unavailable")}, up)

	pool := provider.NewPool(reg, provider.WithEVMDialer(rec.dial))
	defer pool.Close()

	client, err := pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, up, client)
	assert.Equal(t, 1, rec.dials["https://down.example"])
	assert.Equal(t, 1, rec.dials["https://flaky.example"])

	// the healthy endpoint stays current
	client, err = pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, up, client)
	assert.Equal(t, 1, rec.dials["https://down.example"])
}

func TestPoolReturnsHealthyClient(t *testing.T) {
	reg := test.NewTestChaindata(t)
	rec := newRecorder(&fakeEVM{url: "inproc://simulated", chainID: 1337})

	pool := provider.NewPool(reg, provider.WithEVMDialer(rec.dial))
	defer pool.Close()

	client, err := pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.NoError(t, err)
	assert.Same(t, rec.clients["inproc://simulated"], client)

	// health results are cached, the endpoint is dialled once
	_, err = pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.dials["inproc://simulated"])
}

func TestPoolUnknownNetwork(t *testing.T) {
	pool := provider.NewPool(test.NewTestChaindata(t))
	defer pool.Close()

	_, err := pool.EVM(context.Background(), "999")
	assert.ErrorIs(t, err, errs.ErrNoProviderForNetwork)

	_, err = pool.Substrate(context.Background(), "kusama")
	assert.ErrorIs(t, err, errs.ErrNoProviderForNetwork)
}

func TestPoolQuarantineExpires(t *testing.T) {
	reg := test.NewTestChaindata(t)
	rec := newRecorder(&fakeEVM{url: "inproc://simulated", chainID: 1337})
	clock := time2.NewMockClock(time.Now())

	pool := provider.NewPool(reg,
		provider.WithEVMDialer(rec.dial),
		provider.WithQuarantine(time.Minute),
		provider.WithClock(clock),
	)
	defer pool.Close()

	client, err := pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.NoError(t, err)

	pool.FailEVM(test.SimulatedNetworkID, client, errors.New("read: connection reset"))

	_, err = pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.ErrorIs(t, err, errs.ErrNoProviderForNetwork)

	clock.Advance(2 * time.Minute)

	_, err = pool.EVM(context.Background(), test.SimulatedNetworkID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.dials["inproc://simulated"])
}

func twoEndpointRegistry(t *testing.T) *chaindata.Registry {
	t.Helper()

	reg, err := chaindata.New(nil, []*chaindata.EVMNetwork{{
		ID:   "1",
		Name: "Ethereum",
		RPCs: []string{"https://a.example", "https://b.example"},
	}}, nil)
	require.NoError(t, err)

	return reg
}

func TestPoolIgnoresFailuresOfReplacedConnections(t *testing.T) {
	a := &fakeEVM{url: "https://a.example", chainID: 1}
	b := &fakeEVM{url: "https://b.example", chainID: 1}
	rec := newRecorder(a, b)

	pool := provider.NewPool(twoEndpointRegistry(t), provider.WithEVMDialer(rec.dial))
	defer pool.Close()

	client, err := pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, a, client)

	// two callers holding the same client report the same outage
	pool.FailEVM("1", client, errors.New("read: connection reset"))
	pool.FailEVM("1", client, errors.New("read: connection reset"))

	next, err := pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, b, next)
	assert.Equal(t, 1, rec.count("https://b.example"))

	// a client the pool never handed out is not blamed on b
	pool.FailEVM("1", &fakeEVM{url: "https://elsewhere.example"}, errors.New("EOF"))

	next, err = pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, b, next)
	assert.Equal(t, 1, rec.count("https://b.example"))
}

func TestPoolIgnoresCancelledAndUnreachableFailures(t *testing.T) {
	a := &fakeEVM{url: "https://a.example", chainID: 1}
	rec := newRecorder(a, &fakeEVM{url: "https://b.example", chainID: 1})

	pool := provider.NewPool(twoEndpointRegistry(t), provider.WithEVMDialer(rec.dial))
	defer pool.Close()

	client, err := pool.EVM(context.Background(), "1")
	require.NoError(t, err)

	pool.FailEVM("1", client, errors.Wrap(context.Canceled, "failed to send transaction"))
	pool.FailEVM("1", client, errs.New(errs.CodeNoProviderForNetwork, "no provider"))

	again, err := pool.EVM(context.Background(), "1")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 0, rec.count("https://b.example"))
}

func TestPoolHealthChecksRunConcurrently(t *testing.T) {
	reg, err := chaindata.New(nil, []*chaindata.EVMNetwork{{
		ID:   "1",
		Name: "Ethereum",
		RPCs: []string{"https://slow.example"},
	}}, nil)
	require.NoError(t, err)

	slow := &fakeEVM{url: "https://slow.example", chainID: 1, block: make(chan struct{})}
	pool := provider.NewPool(reg, provider.WithEVMDialer(newRecorder(slow).dial))
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.EVM(context.Background(), "1")
			assert.NoError(t, err)
		}()
	}

	// both callers reach the endpoint while neither check has finished
	require.Eventually(t, func() bool { return slow.inflight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(slow.block)
	wg.Wait()
}

func TestPoolSubstrateGenesisCheck(t *testing.T) {
	reg := test.NewTestChaindata(t)

	good := test.NewSubstrateNode(test.TestChainGenesis)
	pool := provider.NewPool(reg, provider.WithSubstrateDialer(test.SubstrateDialer(good)))
	defer pool.Close()

	sub, err := pool.Substrate(context.Background(), test.TestChainID)
	require.NoError(t, err)

	version, err := sub.RuntimeVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good.SpecVersion, version.SpecVersion)

	wrong := test.NewSubstrateNode("0x" + "cd00000000000000000000000000000000000000000000000000000000000000")
	other := provider.NewPool(reg, provider.WithSubstrateDialer(test.SubstrateDialer(wrong)))
	defer other.Close()

	_, err = other.Substrate(context.Background(), test.TestChainID)
	assert.ErrorIs(t, err, errs.ErrNoProviderForNetwork)
}

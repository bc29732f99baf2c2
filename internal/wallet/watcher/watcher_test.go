package watcher_test

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/notify"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const devKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var recipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

func sendEth(t *testing.T, backend *simulated.Backend, value *big.Int) *types.Transaction {
	t.Helper()

	ctx := context.Background()
	client := backend.Client()
	key, err := crypto.HexToECDSA(devKey0)
	require.NoError(t, err)

	n, err := client.PendingNonceAt(ctx, test.DevAccount0)
	require.NoError(t, err)
	gasPrice, err := client.SuggestGasPrice(ctx)
	require.NoError(t, err)

	tx, err := types.SignTx(
		types.NewTx(&types.LegacyTx{Nonce: n, To: &recipient, Value: value, Gas: 21000, GasPrice: gasPrice}),
		types.LatestSignerForChainID(big.NewInt(1337)),
		key,
	)
	require.NoError(t, err)
	require.NoError(t, client.SendTransaction(ctx, tx))

	return tx
}

func waitStatus(t *testing.T, w watcher.Watcher, hash string, status watcher.Status) *watcher.Record {
	t.Helper()

	var rec *watcher.Record
	require.Eventually(t, func() bool {
		var err error
		rec, err = w.Get(context.Background(), hash)
		return err == nil && rec.Status == status
	}, 5*time.Second, 10*time.Millisecond)

	return rec
}

func TestWatchEVMConfirmed(t *testing.T) {
	ctx := context.Background()
	backend := test.NewSimulatedBackend(t, test.DevAccount0)
	pool := provider.NewPool(test.NewTestChaindata(t), provider.WithEVMDialer(test.SimulatedDialer(backend)))
	defer pool.Close()

	notifier := notify.New()
	events := make(chan notify.Event, 4)
	sub := notifier.Subscribe(events)
	defer sub.Unsubscribe()

	w := watcher.NewWatcher(storage.NewMemory(), pool,
		watcher.WithPollInterval(10*time.Millisecond),
		watcher.WithNotifier(notifier),
	)
	defer w.Close()

	value := big.NewInt(1_500_000_000_000_000_000)
	tx := sendEth(t, backend, value)

	err := w.Watch(ctx, &watcher.Record{
		Hash:      tx.Hash().Hex(),
		Family:    provider.FamilyEVM,
		NetworkID: test.SimulatedNetworkID,
		From:      test.DevAccount0.Hex(),
		Nonce:     tx.Nonce(),
		TransferInfo: &watcher.TransferInfo{
			TokenID: "1337-evm-native", Symbol: "ETH", Decimals: 18, Amount: value.String(), To: recipient.Hex(),
		},
	}, watcher.ModePoll)
	require.NoError(t, err)

	backend.Commit()

	rec := waitStatus(t, w, tx.Hash().Hex(), watcher.StatusConfirmed)
	assert.Equal(t, uint64(1), rec.BlockNumber)
	assert.NotEmpty(t, rec.BlockHash)

	select {
	case ev := <-events:
		assert.Equal(t, notify.EventTransferConfirmed, ev.Type)
		assert.Equal(t, "1.5", ev.Amount)
		assert.Equal(t, "ETH", ev.Symbol)
		assert.Equal(t, tx.Hash().Hex(), ev.Hash)
	case <-time.After(time.Second):
		require.Fail(t, "no transfer notification")
	}
}

func TestWatchEVMSubscribe(t *testing.T) {
	ctx := context.Background()
	backend := test.NewSimulatedBackend(t, test.DevAccount0)
	pool := provider.NewPool(test.NewTestChaindata(t), provider.WithEVMDialer(test.SimulatedDialer(backend)))
	defer pool.Close()

	w := watcher.NewWatcher(storage.NewMemory(), pool, watcher.WithPollInterval(50*time.Millisecond))
	defer w.Close()

	tx := sendEth(t, backend, big.NewInt(1))
	require.NoError(t, w.Watch(ctx, &watcher.Record{
		Hash:      tx.Hash().Hex(),
		Family:    provider.FamilyEVM,
		NetworkID: test.SimulatedNetworkID,
		From:      test.DevAccount0.Hex(),
	}, watcher.ModeSubscribe))

	backend.Commit()

	waitStatus(t, w, tx.Hash().Hex(), watcher.StatusConfirmed)
}

type fixedSource uint64

func (s fixedSource) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return uint64(s), nil
}

func TestWatchEVMDroppedForgetsNonce(t *testing.T) {
	ctx := context.Background()
	backend := test.NewSimulatedBackend(t, test.DevAccount0)
	pool := provider.NewPool(test.NewTestChaindata(t), provider.WithEVMDialer(test.SimulatedDialer(backend)))
	defer pool.Close()

	nonces := nonce.NewRegistry(nil)
	key := nonce.NewKey(test.DevAccount0.Hex(), test.SimulatedNetworkID)
	n, err := nonces.Allocate(ctx, key, fixedSource(0))
	require.NoError(t, err)
	require.NoError(t, nonces.Commit(key, n))

	w := watcher.NewWatcher(storage.NewMemory(), pool,
		watcher.WithPollInterval(10*time.Millisecond),
		watcher.WithNonces(nonces),
	)
	defer w.Close()

	// A replacement with the same nonce gets mined instead of the watched transaction.
	sendEth(t, backend, big.NewInt(1))
	backend.Commit()

	lost := common.HexToHash("0x1234").Hex()
	require.NoError(t, w.Watch(ctx, &watcher.Record{
		Hash:      lost,
		Family:    provider.FamilyEVM,
		NetworkID: test.SimulatedNetworkID,
		From:      test.DevAccount0.Hex(),
		Nonce:     0,
	}, watcher.ModePoll))

	waitStatus(t, w, lost, watcher.StatusDropped)

	peek, err := nonces.Peek(ctx, key, fixedSource(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), peek, "slot reseeds after a drop")
}

type downPool struct {
	provider.Pool
	calls atomic.Int32
}

func (p *downPool) EVM(_ context.Context, _ string) (provider.EVMClient, error) {
	p.calls.Add(1)
	return nil, errors.New("connection refused")
}

func (p *downPool) FailEVM(_ string, _ provider.EVMClient, _ error) {}

func (p *downPool) FailSubstrate(_ string, _ *provider.Substrate, _ error) {}

func TestWatchGivesUpAndLeavesBroadcast(t *testing.T) {
	ctx := context.Background()
	pool := &downPool{}
	w := watcher.NewWatcher(storage.NewMemory(), pool,
		watcher.WithPollInterval(time.Millisecond),
		watcher.WithMaxBackoff(4*time.Millisecond),
		watcher.WithMaxAttempts(3),
	)

	hash := common.HexToHash("0xabcd").Hex()
	require.NoError(t, w.Watch(ctx, &watcher.Record{
		Hash: hash, Family: provider.FamilyEVM, NetworkID: test.SimulatedNetworkID, From: test.DevAccount0.Hex(),
	}, watcher.ModePoll))

	require.Eventually(t, func() bool { return pool.calls.Load() == 3 }, 5*time.Second, 5*time.Millisecond)
	w.Close()

	assert.Equal(t, int32(3), pool.calls.Load())
	rec, err := w.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusBroadcast, rec.Status)
}

func substrateSetup(t *testing.T) (*test.SubstrateNode, provider.Pool) {
	t.Helper()

	node := test.NewSubstrateNode(test.TestChainGenesis)
	pool := provider.NewPool(test.NewTestChaindata(t), provider.WithSubstrateDialer(test.SubstrateDialer(node)))
	t.Cleanup(pool.Close)

	return node, pool
}

func submit(t *testing.T, node *test.SubstrateNode, ext string) string {
	t.Helper()

	hash, err := provider.NewSubstrate(node.Client()).SubmitExtrinsic(context.Background(), ext)
	require.NoError(t, err)

	return hash
}

func TestWatchSubstrateIncluded(t *testing.T) {
	ctx := context.Background()
	node, pool := substrateSetup(t)

	w := watcher.NewWatcher(storage.NewMemory(), pool, watcher.WithPollInterval(10*time.Millisecond))
	defer w.Close()

	node.Seal()
	hash := submit(t, node, "0x280403000b63ce64c10c05")
	require.NoError(t, w.Watch(ctx, &watcher.Record{
		Hash: hash, Family: provider.FamilySubstrate, NetworkID: test.TestChainID, FromBlock: 1,
	}, watcher.ModePoll))

	node.Seal()

	rec := waitStatus(t, w, hash, watcher.StatusConfirmed)
	assert.Equal(t, uint64(2), rec.BlockNumber)
	assert.Equal(t, "0x"+"0000000000000000000000000000000000000000000000000000000000000002", rec.BlockHash)
}

func TestWatchSubstrateDropped(t *testing.T) {
	ctx := context.Background()
	node, pool := substrateSetup(t)

	w := watcher.NewWatcher(storage.NewMemory(), pool,
		watcher.WithPollInterval(10*time.Millisecond),
		watcher.WithBlockWindow(2),
	)
	defer w.Close()

	hash := submit(t, node, "0x280403000b63ce64c10c05")
	node.Drop()
	require.NoError(t, w.Watch(ctx, &watcher.Record{
		Hash: hash, Family: provider.FamilySubstrate, NetworkID: test.TestChainID,
	}, watcher.ModePoll))

	node.Seal()
	node.Seal()

	waitStatus(t, w, hash, watcher.StatusDropped)
}

func TestResumeWatchesStoredRecords(t *testing.T) {
	ctx := context.Background()
	node, pool := substrateSetup(t)
	db := storage.NewMemory()

	hash := submit(t, node, "0x280403000b63ce64c10c05")

	first := watcher.NewWatcher(db, pool, watcher.WithPollInterval(10*time.Millisecond))
	require.NoError(t, first.Watch(ctx, &watcher.Record{
		Hash: hash, Family: provider.FamilySubstrate, NetworkID: test.TestChainID,
	}, watcher.ModePoll))
	first.Close()

	node.Seal()

	second := watcher.NewWatcher(db, pool, watcher.WithPollInterval(10*time.Millisecond))
	defer second.Close()
	require.NoError(t, second.Resume(ctx))

	waitStatus(t, second, hash, watcher.StatusConfirmed)
	require.NoError(t, second.Recheck(ctx, hash))
}

func TestGetUnknown(t *testing.T) {
	w := watcher.NewWatcher(storage.NewMemory(), &downPool{})
	defer w.Close()

	_, err := w.Get(context.Background(), "0xdead")
	require.ErrorIs(t, err, errs.ErrNotFound)

	err = w.Watch(context.Background(), &watcher.Record{}, watcher.ModePoll)
	require.ErrorIs(t, err, errs.ErrInvalidPayload)
}

package dispatch_test

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/dispatch"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/keystore"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const (
	devKey0 = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	alice   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

var (
	recipient = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	cred      = keyring.Credential{Password: test.TestPassword}
)

type fixture struct {
	reg      *chaindata.Registry
	backend  *simulated.Backend
	node     *test.SubstrateNode
	pool     provider.Pool
	nonces   nonce.Registry
	keys     keyring.Service
	watcher  watcher.Watcher
	d        dispatch.Dispatcher
	evmAddr  string
	subAddr  string
	accounts account.Service
}

func newFixture(t *testing.T, opts ...provider.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		reg:     test.NewTestChaindata(t),
		backend: test.NewSimulatedBackend(t, test.DevAccount0),
		node:    test.NewSubstrateNode(test.TestChainGenesis),
		nonces:  nonce.NewRegistry(nil),
	}

	poolOpts := []provider.Option{
		provider.WithEVMDialer(test.SimulatedDialer(f.backend)),
		provider.WithSubstrateDialer(test.SubstrateDialer(f.node)),
	}
	f.pool = provider.NewPool(f.reg, append(poolOpts, opts...)...)
	t.Cleanup(f.pool.Close)

	db := storage.NewMemory()
	f.accounts = account.NewService(storage.NewPrefixDB(db, "acct/"))
	f.keys = keyring.NewService(storage.NewPrefixDB(db, "keyring/"), f.accounts, address.NewService(), keystore.LightScryptParams())

	entry, err := f.keys.Import(ctx, "dev", test.TestMnemonic, test.TestPassword)
	require.NoError(t, err)
	evmAcc, err := f.keys.CreateAccount(ctx, entry.ID, address.FamilyEthereum, "eth", cred)
	require.NoError(t, err)
	subAcc, err := f.keys.CreateAccount(ctx, entry.ID, address.FamilyECDSA, "sub", cred)
	require.NoError(t, err)
	f.evmAddr = evmAcc.Address
	f.subAddr = subAcc.Address
	require.Equal(t, test.DevAccount0, common.HexToAddress(f.evmAddr))

	f.watcher = watcher.NewWatcher(storage.NewPrefixDB(db, "tx/"), f.pool,
		watcher.WithPollInterval(10*time.Millisecond),
		watcher.WithNonces(f.nonces),
	)
	t.Cleanup(f.watcher.Close)

	f.d = dispatch.NewDispatcher(dispatch.Deps{
		Chaindata: f.reg,
		Pool:      f.pool,
		Nonces:    f.nonces,
		Fees:      fee.NewEstimator(f.reg, f.pool),
		Accounts:  f.accounts,
		Signers:   f.keys,
		Tracker:   f.watcher,
	})

	return f
}

func (f *fixture) ethTransfer(amount string) *request.AssetTransferPayload {
	return &request.AssetTransferPayload{
		ChainID:     test.SimulatedNetworkID,
		TokenID:     "1337-evm-native",
		FromAddress: f.evmAddr,
		ToAddress:   recipient.Hex(),
		Amount:      amount,
	}
}

func (f *fixture) subTransfer(amount string) *request.AssetTransferPayload {
	return &request.AssetTransferPayload{
		ChainID:     test.TestChainID,
		TokenID:     "devnet-substrate-native",
		FromAddress: f.subAddr,
		ToAddress:   alice,
		Amount:      amount,
	}
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

// extrinsicBody strips the compact length prefix of a hex encoded extrinsic.
func extrinsicBody(t *testing.T, ext string) []byte {
	t.Helper()

	raw, err := extrinsic.FromHex(ext)
	require.NoError(t, err)

	switch raw[0] & 0x03 {
	case 0x00:
		return raw[1:]
	case 0x01:
		return raw[2:]
	default:
		return raw[4:]
	}
}

// nonceOf reads the compact nonce of a signed, immortal extrinsic with a single byte nonce.
func nonceOf(t *testing.T, ext string) uint64 {
	t.Helper()

	body := extrinsicBody(t, ext)
	// version, address kind, account id, signature kind, signature, era
	const offset = 1 + 1 + 32 + 1 + 65 + 1

	return uint64(body[offset] >> 2)
}

func txNonce(t *testing.T, f *fixture, hash string) uint64 {
	t.Helper()

	tx, _, err := f.backend.Client().TransactionByHash(context.Background(), common.HexToHash(hash))
	require.NoError(t, err)

	return tx.Nonce()
}

func TestTransferEVMNative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	oneEth := "1000000000000000000"
	res, err := f.d.Transfer(ctx, f.ethTransfer(oneEth), cred)
	require.NoError(t, err)
	require.NotEmpty(t, res.Hash)

	second, err := f.d.Transfer(ctx, f.ethTransfer("1"), cred)
	require.NoError(t, err)
	f.backend.Commit()

	assert.Equal(t, uint64(0), txNonce(t, f, res.Hash))
	assert.Equal(t, uint64(1), txNonce(t, f, second.Hash))

	rec := waitStatus(t, f.watcher, res.Hash, watcher.StatusConfirmed)
	assert.Equal(t, "1337-evm-native", rec.TransferInfo.TokenID)
	assert.Equal(t, oneEth, rec.TransferInfo.Amount)

	balance, err := f.backend.Client().BalanceAt(ctx, recipient, nil)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000001", balance.String())
}

func TestTransferEVMWithGasSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.ethTransfer("1000")
	p.GasSettings = &fee.GasSettings{
		Type:                 fee.TypeEIP1559,
		Gas:                  30000,
		MaxFeePerGas:         big.NewInt(50_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(2_000_000_000),
	}

	res, err := f.d.Transfer(ctx, p, cred)
	require.NoError(t, err)

	tx, _, err := f.backend.Client().TransactionByHash(ctx, common.HexToHash(res.Hash))
	require.NoError(t, err)
	assert.Equal(t, uint64(30000), tx.Gas())
	assert.Equal(t, int64(50_000_000_000), tx.GasFeeCap().Int64())
	assert.Equal(t, int64(2_000_000_000), tx.GasTipCap().Int64())
}

func TestCheckFeesDoesNotAllocate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	quote, err := f.d.CheckFees(ctx, f.ethTransfer("1000"))
	require.NoError(t, err)
	assert.Equal(t, provider.FamilyEVM, quote.Family)
	assert.Equal(t, uint64(21000), quote.Gas)
	assert.Equal(t, uint64(0), quote.Nonce)
	assert.Equal(t, "ETH", quote.Symbol)
	assert.Positive(t, quote.Suggested.Sign())
	assert.True(t, quote.Maximum.Cmp(quote.Suggested) >= 0)

	again, err := f.d.CheckFees(ctx, f.ethTransfer("1000"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), again.Nonce)

	res, err := f.d.Transfer(ctx, f.ethTransfer("1000"), cred)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), txNonce(t, f, res.Hash))

	after, err := f.d.CheckFees(ctx, f.ethTransfer("1000"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), after.Nonce)
}

func TestCheckFeesSubstrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.node.SetNonce(f.subAddr, 3)

	p := f.subTransfer("1000000000000")
	p.Tip = "100"
	quote, err := f.d.CheckFees(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, provider.FamilySubstrate, quote.Family)
	assert.Equal(t, "15000100", quote.Suggested.String())
	assert.Equal(t, quote.Suggested, quote.Maximum)
	assert.Equal(t, uint64(3), quote.Nonce)
	assert.Equal(t, "DEV", quote.Symbol)
	assert.Empty(t, f.node.Submitted())
}

func TestTransferSubstrateNative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.node.AutoSeal = true
	f.node.SetNonce(f.subAddr, 5)

	res, err := f.d.Transfer(ctx, f.subTransfer("1000000000000"), cred)
	require.NoError(t, err)

	submitted := f.node.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, test.ExtrinsicHash(submitted[0]), res.Hash)

	body := extrinsicBody(t, submitted[0])
	assert.Equal(t, byte(0x84), body[0])
	assert.Equal(t, byte(0x02), body[34])
	assert.Equal(t, uint64(5), nonceOf(t, submitted[0]))
	// zero tip, then balances.transferKeepAlive
	assert.Equal(t, []byte{0x00, 0x05, 0x03}, body[102:105])

	rec := waitStatus(t, f.watcher, res.Hash, watcher.StatusConfirmed)
	assert.Equal(t, uint64(1), rec.BlockNumber)

	next, err := f.d.Transfer(ctx, f.subTransfer("1"), cred)
	require.NoError(t, err)
	submitted = f.node.Submitted()
	require.Len(t, submitted, 2)
	assert.Equal(t, test.ExtrinsicHash(submitted[1]), next.Hash)
	assert.Equal(t, uint64(6), nonceOf(t, submitted[1]))
}

func TestRejectedBroadcastReleasesNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.node.SetNonce(f.subAddr, 5)
	f.node.SubmitErr = &test.NodeError{
		Code:    1010,
		Message: "Invalid Transaction",
		Data:    "Inability to pay some fees (e.g. account balance too low)",
	}

	_, err := f.d.Transfer(ctx, f.subTransfer("1000"), cred)
	require.ErrorIs(t, err, errs.ErrBroadcastFailed)
	assert.Contains(t, err.Error(), "Invalid Transaction")
	assert.Equal(t, "Inability to pay some fees (e.g. account balance too low)", errs.DataOf(err))
	assert.Empty(t, f.node.Submitted())

	f.node.SubmitErr = nil
	_, err = f.d.Transfer(ctx, f.subTransfer("1000"), cred)
	require.NoError(t, err)

	submitted := f.node.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, uint64(5), nonceOf(t, submitted[0]))
}

// flakyCaller loses the connection on submission while failing is set.
type flakyCaller struct {
	provider.RPCCaller
	failing *atomic.Bool
}

func (c flakyCaller) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if method == "author_submitExtrinsic" && c.failing.Load() {
		return errors.New("read tcp 127.0.0.1:9944: connection reset by peer")
	}

	return c.RPCCaller.CallContext(ctx, result, method, args...)
}

func TestAmbiguousBroadcastKeepsNonce(t *testing.T) {
	ctx := context.Background()

	var failing atomic.Bool
	failing.Store(true)

	var node *test.SubstrateNode
	f := newFixture(t,
		provider.WithQuarantine(0),
		provider.WithSubstrateDialer(func(_ context.Context, _ string) (provider.RPCCaller, error) {
			return flakyCaller{RPCCaller: node.Client(), failing: &failing}, nil
		}),
	)
	node = f.node
	f.node.SetNonce(f.subAddr, 5)

	_, err := f.d.Transfer(ctx, f.subTransfer("1000"), cred)
	require.ErrorIs(t, err, errs.ErrBroadcastFailed)
	assert.Equal(t, errs.CodeBroadcastFailed, errs.CodeOf(err))

	failing.Store(false)
	_, err = f.d.Transfer(ctx, f.subTransfer("1000"), cred)
	require.NoError(t, err)

	submitted := f.node.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, uint64(6), nonceOf(t, submitted[0]))
}

func TestTransferWrongCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.d.Transfer(ctx, f.ethTransfer("1"), keyring.Credential{Password: "wrong"})
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = f.d.Transfer(ctx, f.ethTransfer("1"), keyring.Credential{})
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	res, err := f.d.Transfer(ctx, f.ethTransfer("1"), cred)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), txNonce(t, f, res.Hash))
}

func TestTransferValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.ethTransfer("1")
	p.TokenID = "1337-evm-unknown"
	_, err := f.d.Transfer(ctx, p, cred)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	p = f.ethTransfer("1")
	p.ToAddress = alice
	_, err = f.d.Transfer(ctx, p, cred)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	p = f.subTransfer("1")
	p.Method = "forceTransfer"
	_, err = f.d.Transfer(ctx, p, cred)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	p = f.subTransfer("1")
	p.FromAddress = alice
	_, err = f.d.Transfer(ctx, p, cred)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, f.node.Submitted())
}

func TestTransferNonPositiveFeesKeepNonceAndEndpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, settings := range []*fee.GasSettings{
		{Type: fee.TypeEIP1559, MaxFeePerGas: big.NewInt(50_000_000_000), MaxPriorityFeePerGas: big.NewInt(-1)},
		{Type: fee.TypeEIP1559, MaxFeePerGas: big.NewInt(-1), MaxPriorityFeePerGas: big.NewInt(-2)},
		{Type: fee.TypeLegacy, GasPrice: big.NewInt(-1)},
	} {
		p := f.ethTransfer("1")
		p.GasSettings = settings
		_, err := f.d.Transfer(ctx, p, cred)
		require.ErrorIs(t, err, errs.ErrInvalidPayload)
	}

	client, err := f.pool.EVM(ctx, test.SimulatedNetworkID)
	require.NoError(t, err)

	next, err := f.nonces.Peek(ctx, nonce.NewKey(f.evmAddr, test.SimulatedNetworkID), client)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)

	res, err := f.d.Transfer(ctx, f.ethTransfer("1"), cred)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), txNonce(t, f, res.Hash))
}

func TestEncodable(t *testing.T) {
	to := recipient
	ok := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	require.NoError(t, dispatch.Encodable(ok))

	negative := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		GasTipCap: big.NewInt(-1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	assert.ErrorIs(t, dispatch.Encodable(negative), errs.ErrInvalidPayload)
}

func TestAmbiguousFailureBlamesEndpointOnlyForTransportErrors(t *testing.T) {
	assert.True(t, dispatch.ReportEndpoint(context.Background(), errors.New("read tcp: connection reset by peer")))
	assert.False(t, dispatch.ReportEndpoint(context.Background(), errors.Wrap(context.Canceled, "post")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, dispatch.ReportEndpoint(ctx, context.DeadlineExceeded))
}

func signDevTx(t *testing.T, chainID int64, n uint64) string {
	t.Helper()

	key, err := crypto.HexToECDSA(devKey0)
	require.NoError(t, err)

	tx, err := types.SignTx(
		types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(chainID),
			Nonce:     n,
			GasTipCap: big.NewInt(1_000_000_000),
			GasFeeCap: big.NewInt(20_000_000_000),
			Gas:       21000,
			To:        &recipient,
			Value:     big.NewInt(5),
		}),
		types.LatestSignerForChainID(big.NewInt(chainID)),
		key,
	)
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	return hexutil.Encode(raw)
}

func hardwarePayload() *request.AssetTransferHardwarePayload {
	return &request.AssetTransferHardwarePayload{
		EVMNetworkID: test.SimulatedNetworkID,
		TokenID:      "1337-evm-native",
		Amount:       "5",
		ToAddress:    recipient.Hex(),
		Unsigned:     request.EthTx{From: test.DevAccount0.Hex()},
	}
}

func TestTransferEthHardwareObservesNonce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.d.Transfer(ctx, f.ethTransfer("1"), cred)
	require.NoError(t, err)

	res, err := f.d.TransferEthHardware(ctx, hardwarePayload(), signDevTx(t, 1337, 1))
	require.NoError(t, err)

	third, err := f.d.Transfer(ctx, f.ethTransfer("1"), cred)
	require.NoError(t, err)
	f.backend.Commit()

	assert.Equal(t, uint64(0), txNonce(t, f, first.Hash))
	assert.Equal(t, uint64(1), txNonce(t, f, res.Hash))
	assert.Equal(t, uint64(2), txNonce(t, f, third.Hash))

	rec := waitStatus(t, f.watcher, res.Hash, watcher.StatusConfirmed)
	assert.Equal(t, "5", rec.TransferInfo.Amount)
}

func TestTransferEthHardwareValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.d.TransferEthHardware(ctx, hardwarePayload(), signDevTx(t, 1, 0))
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	p := hardwarePayload()
	p.Unsigned.From = recipient.Hex()
	_, err = f.d.TransferEthHardware(ctx, p, signDevTx(t, 1337, 0))
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = f.d.TransferEthHardware(ctx, hardwarePayload(), "0xdeadbeef")
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func approvePayload(t *testing.T, from string, n uint64) *request.AssetTransferApproveSignPayload {
	t.Helper()

	dest, err := address.AccountID(alice)
	require.NoError(t, err)

	call, err := extrinsic.BalancesTransfer([2]byte{0x05, 0x03}, dest, big.NewInt(1000))
	require.NoError(t, err)

	return &request.AssetTransferApproveSignPayload{
		Unsigned: extrinsic.SignerPayloadJSON{
			Address:            from,
			BlockHash:          test.TestChainGenesis,
			BlockNumber:        "0x0",
			Era:                "0x00",
			GenesisHash:        test.TestChainGenesis,
			Method:             extrinsic.ToHex(call),
			Nonce:              hexutil.EncodeUint64(n),
			SpecVersion:        "0xf4a10",
			Tip:                "0x0",
			TransactionVersion: "0x1a",
			Version:            4,
		},
		TransferInfo: &watcher.TransferInfo{TokenID: "devnet-substrate-native", Symbol: "DEV", Decimals: 12, Amount: "1000", To: alice},
	}
}

func TestApproveSign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.node.AutoSeal = true

	p := approvePayload(t, f.subAddr, 7)
	pl, err := p.Unsigned.Payload()
	require.NoError(t, err)

	sig, err := f.keys.GetUnlockedSigner(ctx, f.subAddr, cred)
	require.NoError(t, err)
	message, err := pl.SigningMessage()
	require.NoError(t, err)
	signature, err := sig.SignSubstrate(message)
	require.NoError(t, err)
	ext, err := pl.Signed(sig.SubstrateAccountID(), signature)
	require.NoError(t, err)

	res, err := f.d.ApproveSign(ctx, p, hexutil.Encode(append([]byte{0x02}, signature...)))
	require.NoError(t, err)
	assert.Equal(t, extrinsic.Hash(ext), res.Hash)

	submitted := f.node.Submitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, extrinsic.ToHex(ext), submitted[0])

	rec := waitStatus(t, f.watcher, res.Hash, watcher.StatusConfirmed)
	assert.Equal(t, "1000", rec.TransferInfo.Amount)
}

func TestApproveSignValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.d.ApproveSign(ctx, approvePayload(t, f.subAddr, 0), "0x1234")
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	p := approvePayload(t, f.subAddr, 0)
	p.Unsigned.GenesisHash = "0x" + common.Bytes2Hex(make([]byte, 32))
	p.Unsigned.BlockHash = p.Unsigned.GenesisHash
	_, err = f.d.ApproveSign(ctx, p, hexutil.Encode(make([]byte, 65)))
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, f.node.Submitted())
}

func TestSignEthPersonal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, method := range []string{request.MethodPersonalSign, request.MethodEthSign} {
		out, err := f.d.SignEth(ctx, &request.EthSignPayload{
			Method:  method,
			Address: f.evmAddr,
			Message: json.RawMessage(`"hello broker"`),
		}, cred)
		require.NoError(t, err)

		sig, err := hexutil.Decode(out)
		require.NoError(t, err)
		require.Len(t, sig, 65)
		assert.GreaterOrEqual(t, sig[64], byte(27))

		sig[64] -= 27
		pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello broker")), sig)
		require.NoError(t, err)
		assert.Equal(t, test.DevAccount0, crypto.PubkeyToAddress(*pub))
	}
}

func TestSignEthTypedData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	typed := `{
		"types": {
			"EIP712Domain": [{"name": "name", "type": "string"}, {"name": "chainId", "type": "uint256"}],
			"Mail": [{"name": "contents", "type": "string"}]
		},
		"primaryType": "Mail",
		"domain": {"name": "Broker", "chainId": "1337"},
		"message": {"contents": "hello"}
	}`

	out, err := f.d.SignEth(ctx, &request.EthSignPayload{
		Method:  request.MethodSignTypedDataV4,
		Address: f.evmAddr,
		Message: json.RawMessage(typed),
	}, cred)
	require.NoError(t, err)
	assert.Len(t, out, 2+65*2)

	quoted, err := json.Marshal(typed)
	require.NoError(t, err)
	fromString, err := f.d.SignEth(ctx, &request.EthSignPayload{
		Method:  request.MethodSignTypedDataV3,
		Address: f.evmAddr,
		Message: quoted,
	}, cred)
	require.NoError(t, err)
	assert.Equal(t, out, fromString)
}

func TestSignSubstrateRawData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.d.SignSubstrate(ctx, &request.SubstrateSignPayload{Address: f.subAddr, Data: "0x1234"}, cred)
	require.NoError(t, err)

	raw, err := hexutil.Decode(out)
	require.NoError(t, err)
	require.Len(t, raw, 66)
	assert.Equal(t, byte(0x02), raw[0])

	sig, err := f.keys.GetUnlockedSigner(ctx, f.subAddr, cred)
	require.NoError(t, err)
	expected, err := sig.SignSubstrate([]byte("<Bytes>\x12\x34</Bytes>"))
	require.NoError(t, err)
	assert.Equal(t, expected, raw[1:])

	_, err = f.d.SignSubstrate(ctx, &request.SubstrateSignPayload{Address: f.subAddr, Data: "0x1234"}, keyring.Credential{Password: "wrong"})
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestExecutor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := dispatch.NewExecutor(f.d)

	payload, err := json.Marshal(request.EthSignPayload{
		Method:  request.MethodPersonalSign,
		Address: f.evmAddr,
		Message: json.RawMessage(`"hi"`),
	})
	require.NoError(t, err)
	req := &request.Request{Kind: request.KindEthSign, Payload: payload}

	out, err := exec.Execute(ctx, req, &request.Approval{Credential: cred})
	require.NoError(t, err)
	result, ok := out.(*dispatch.SignatureResult)
	require.True(t, ok)
	assert.Len(t, result.Signature, 2+65*2)

	out, err = exec.Execute(ctx, req, &request.Approval{Signature: "0xabcdef"})
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef", out.(*dispatch.SignatureResult).Signature)

	_, err = exec.Execute(ctx, req, &request.Approval{DeviceError: &request.DeviceError{StatusCode: 0x6985, Name: "TransportStatusError"}})
	assert.ErrorIs(t, err, errs.ErrUserRejected)

	_, err = exec.Execute(ctx, req, &request.Approval{DeviceError: &request.DeviceError{StatusCode: 0x6a80, Message: "Invalid data"}})
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	hw, err := json.Marshal(hardwarePayload())
	require.NoError(t, err)
	_, err = exec.Execute(ctx, &request.Request{Kind: request.KindAssetTransferHardware, Payload: hw}, &request.Approval{})
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestExecutorAssetTransferPriority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	exec := dispatch.NewExecutor(f.d)

	payload, err := json.Marshal(f.ethTransfer("1"))
	require.NoError(t, err)

	settings := &fee.GasSettings{Type: fee.TypeLegacy, Gas: 25000, GasPrice: big.NewInt(30_000_000_000)}
	out, err := exec.Execute(ctx, &request.Request{Kind: request.KindAssetTransfer, Payload: payload},
		&request.Approval{Credential: cred, GasSettings: settings})
	require.NoError(t, err)

	res, ok := out.(*dispatch.Result)
	require.True(t, ok)

	tx, _, err := f.backend.Client().TransactionByHash(ctx, common.HexToHash(res.Hash))
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, int64(30_000_000_000), tx.GasPrice().Int64())
	assert.Equal(t, uint64(25000), tx.Gas())
}

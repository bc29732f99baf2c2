package signer_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/signer"
	"golang.org/x/crypto/blake2b"
)

// hardhat account #0
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newSigner(t *testing.T) signer.Signer {
	t.Helper()

	s, err := signer.New(common.FromHex(devKey))
	require.NoError(t, err)
	t.Cleanup(s.Wipe)

	return s
}

func TestNewClearsInput(t *testing.T) {
	raw := common.FromHex(devKey)
	s, err := signer.New(raw)
	require.NoError(t, err)

	assert.Equal(t, test.DevAccount0, s.EVMAddress())
	assert.Equal(t, make([]byte, 32), raw)
}

func TestSignEVMTransaction(t *testing.T) {
	s := newSigner(t)
	to := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	chainID := big.NewInt(1337)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     3,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := s.SignEVMTransaction(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, test.DevAccount0, from)

	legacy := types.NewTx(&types.LegacyTx{Nonce: 0, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1)})
	signed, err = s.SignEVMTransaction(legacy, big.NewInt(56))
	require.NoError(t, err)
	assert.Equal(t, int64(56), signed.ChainId().Int64())
}

func TestSignPersonal(t *testing.T) {
	s := newSigner(t)

	sig, err := s.SignPersonal([]byte("hello"))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
	require.NoError(t, err)
	assert.Equal(t, test.DevAccount0, crypto.PubkeyToAddress(*pub))
}

func TestSignTypedData(t *testing.T) {
	s := newSigner(t)

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}, {Name: "chainId", Type: "uint256"}},
			"Mail":         {{Name: "contents", Type: "string"}},
		},
		PrimaryType: "Mail",
		Domain:      apitypes.TypedDataDomain{Name: "Broker", ChainId: math.NewHexOrDecimal256(1)},
		Message:     apitypes.TypedDataMessage{"contents": "hello"},
	}

	sig, err := s.SignTypedData(data)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(data)
	require.NoError(t, err)

	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, test.DevAccount0, crypto.PubkeyToAddress(*pub))
}

func TestSignSubstrate(t *testing.T) {
	s := newSigner(t)
	payload := []byte{0x05, 0x03, 0x00}

	sig, err := s.SignSubstrate(payload)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	digest := blake2b.Sum256(payload)
	pub, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), crypto.CompressPubkey(pub))

	id := blake2b.Sum256(s.PublicKey())
	assert.Equal(t, id[:], s.SubstrateAccountID())
}

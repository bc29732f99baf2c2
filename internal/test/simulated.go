package test

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

// DevAccount0 is m/44'/60'/0'/0/0 of TestMnemonic.
var DevAccount0 = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// simClient hides Close so the pool cannot shut down the shared backend client.
type simClient struct {
	simulated.Client
}

// NewSimulatedBackend starts an in-process chain (chain id 1337) funding the given addresses with 100 ETH.
func NewSimulatedBackend(t *testing.T, funded ...common.Address) *simulated.Backend {
	t.Helper()

	balance, _ := new(big.Int).SetString("100000000000000000000", 10)
	alloc := types.GenesisAlloc{}
	for _, addr := range funded {
		alloc[addr] = types.Account{Balance: balance}
	}

	backend := simulated.NewBackend(alloc)
	t.Cleanup(func() {
		_ = backend.Close()
	})

	return backend
}

// SimulatedDialer serves every EVM endpoint from the simulated backend.
func SimulatedDialer(backend *simulated.Backend) provider.EVMDialer {
	return func(_ context.Context, _ string) (provider.EVMClient, error) {
		return simClient{backend.Client()}, nil
	}
}

// SubstrateDialer serves every substrate endpoint from the fake node.
func SubstrateDialer(node *SubstrateNode) provider.SubstrateDialer {
	return func(_ context.Context, _ string) (provider.RPCCaller, error) {
		return node.Client(), nil
	}
}

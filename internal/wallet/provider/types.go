package provider

import (
	"context"

	"github.com/ethereum/go-ethereum"
)

// Family distinguishes account-model EVM networks from substrate chains.
type Family string

const (
	FamilyEVM       Family = "evm"
	FamilySubstrate Family = "substrate"
)

// EVMClient is the subset of the go-ethereum client API the broker uses.
// Both *ethclient.Client and the simulated backend client satisfy it.
type EVMClient interface {
	ethereum.ChainIDReader
	ethereum.BlockNumberReader
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.PendingStateReader
	ethereum.TransactionReader
	ethereum.TransactionSender
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.GasPricer1559
	ethereum.FeeHistoryReader
}

// RPCCaller is a generic JSON-RPC client, satisfied by *rpc.Client.
type RPCCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

type EVMDialer func(ctx context.Context, url string) (EVMClient, error)

type SubstrateDialer func(ctx context.Context, url string) (RPCCaller, error)

// Pool keeps a live connection per network and fails over across configured endpoints.
type Pool interface {
	// EVM returns a healthy client for the EVM network or NoProviderForNetwork.
	EVM(ctx context.Context, networkID string) (EVMClient, error)

	// Substrate returns a healthy RPC wrapper for the chain or NoProviderForNetwork.
	Substrate(ctx context.Context, chainID string) (*Substrate, error)

	// FailEVM quarantines the endpoint client was handed out from after a transport error. Reports
	// about a connection the pool already replaced are ignored.
	FailEVM(networkID string, client EVMClient, cause error)

	// FailSubstrate is FailEVM for substrate chains.
	FailSubstrate(chainID string, sub *Substrate, cause error)

	Close()
}

package test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/chaindata"
)

const (
	// TestMnemonic is the well known hardhat/anvil development mnemonic.
	TestMnemonic = "test test test test test test test test test test test junk"
	// TestMnemonicAlt is the BIP39 all-abandon test vector.
	TestMnemonicAlt = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	TestPassword = "correct horse battery staple"

	SimulatedNetworkID = "1337"
	TestChainID        = "devnet"
	TestChainGenesis   = "0x" + "ab00000000000000000000000000000000000000000000000000000000000000"
)

// ChaindataFile returns the path of the checked-in chaindata fixture.
func ChaindataFile() string {
	_, file, _, _ := runtime.Caller(0) //nolint:dogsled
	return filepath.Join(filepath.Dir(file), "..", "chaindata", "testdata", "chaindata.toml")
}

// NewTestChaindata returns a registry with a simulated EVM network and an in-process substrate chain.
func NewTestChaindata(t *testing.T) *chaindata.Registry {
	t.Helper()

	reg, err := chaindata.New(
		[]*chaindata.Chain{{
			ID:            TestChainID,
			Name:          "Devnet",
			GenesisHash:   TestChainGenesis,
			RPCs:          []string{"inproc://devnet"},
			SS58Prefix:    42,
			NativeTokenID: "devnet-substrate-native",
			Calls: map[string]string{
				"balances.transferKeepAlive":  "0x0503",
				"balances.transferAllowDeath": "0x0500",
				"currencies.transfer":         "0x0b00",
				"tokens.transfer":             "0x0c00",
				"assets.transferKeepAlive":    "0x3209",
				"contracts.call":              "0x2806",
				"eqBalances.transfer":         "0x1100",
			},
		}},
		[]*chaindata.EVMNetwork{{
			ID:            SimulatedNetworkID,
			Name:          "Simulated",
			RPCs:          []string{"inproc://simulated"},
			NativeTokenID: "1337-evm-native",
		}},
		[]*chaindata.Token{
			{ID: "devnet-substrate-native", Type: chaindata.TokenTypeSubstrateNative, Symbol: "DEV", Decimals: 12, ChainID: TestChainID},
			{ID: "devnet-substrate-orml-ausd", Type: chaindata.TokenTypeSubstrateOrml, Symbol: "aUSD", Decimals: 12, ChainID: TestChainID, OnChainID: "0x0081"},
			{ID: "devnet-substrate-tokens-kar", Type: chaindata.TokenTypeSubstrateTokens, Symbol: "KAR", Decimals: 12, ChainID: TestChainID, OnChainID: "0x0080"},
			{ID: "devnet-substrate-assets-1984", Type: chaindata.TokenTypeSubstrateAssets, Symbol: "USDt", Decimals: 6, ChainID: TestChainID, OnChainID: "1984"},
			{
				ID: "devnet-substrate-psp22-az", Type: chaindata.TokenTypeSubstratePSP22, Symbol: "AZ", Decimals: 12, ChainID: TestChainID,
				ContractAddress: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", GasLimit: 500_000_000,
			},
			{ID: "devnet-substrate-equilibrium-eq", Type: chaindata.TokenTypeSubstrateEquilibrium, Symbol: "EQ", Decimals: 9, ChainID: TestChainID, OnChainID: "25969"},
			{ID: "1337-evm-native", Type: chaindata.TokenTypeEVMNative, Symbol: "ETH", Decimals: 18, EVMNetworkID: SimulatedNetworkID},
		},
	)
	require.NoError(t, err)

	return reg
}

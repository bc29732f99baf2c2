package chaindata

import (
	"strings"
)

// Chain is a substrate-based network.
type Chain struct {
	ID            string   `toml:"id" json:"id"`
	Name          string   `toml:"name" json:"name"`
	GenesisHash   string   `toml:"genesisHash" json:"genesisHash"`
	RPCs          []string `toml:"rpcs" json:"-"`
	SS58Prefix    uint16   `toml:"ss58Prefix" json:"ss58Prefix"`
	NativeTokenID string   `toml:"nativeTokenId" json:"nativeTokenId"`
	// MetadataHash enables the CheckMetadataHash signed extension (disabled mode).
	MetadataHash bool `toml:"metadataHash" json:"metadataHash"`
	// Calls maps "pallet.call" to its two byte call index, hex encoded ("0x0503").
	Calls map[string]string `toml:"calls" json:"-"`
}

// EVMNetwork is an account-model network addressed by its numeric chain id.
type EVMNetwork struct {
	ID            string   `toml:"id" json:"id"`
	Name          string   `toml:"name" json:"name"`
	RPCs          []string `toml:"rpcs" json:"-"`
	Legacy        bool     `toml:"legacy" json:"legacy"`
	NativeTokenID string   `toml:"nativeTokenId" json:"nativeTokenId"`
}

type Token struct {
	ID           string    `toml:"id" json:"id"`
	Type         TokenType `toml:"type" json:"type"`
	Symbol       string    `toml:"symbol" json:"symbol"`
	Decimals     int32     `toml:"decimals" json:"decimals"`
	ChainID      string    `toml:"chainId" json:"chainId,omitempty"`
	EVMNetworkID string    `toml:"evmNetworkId" json:"evmNetworkId,omitempty"`
	// ContractAddress of erc20 and psp22 tokens.
	ContractAddress string `toml:"contractAddress" json:"contractAddress,omitempty"`
	// OnChainID is the asset id (assets, equilibrium) or the hex SCALE currency id (orml, tokens).
	OnChainID string `toml:"onChainId" json:"onChainId,omitempty"`
	// Pallet hosting transfers for substrate-tokens style tokens, e.g. "tokens" or "currencies".
	Pallet string `toml:"pallet" json:"pallet,omitempty"`
	// GasLimit is the ref_time weight used for psp22 contract calls.
	GasLimit uint64 `toml:"gasLimit" json:"gasLimit,omitempty"`
}

// ChainSelector looks a chain up by id or by genesis hash.
type ChainSelector struct {
	ID          string
	GenesisHash string
}

func (s ChainSelector) String() string {
	if s.ID != "" {
		return s.ID
	}

	return s.GenesisHash
}

func (s ChainSelector) matches(c *Chain) bool {
	if s.ID != "" {
		return c.ID == s.ID
	}

	return s.GenesisHash != "" && strings.EqualFold(c.GenesisHash, s.GenesisHash)
}

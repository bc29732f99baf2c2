package dispatch

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

const (
	defaultCurrencyPallet = "currencies"
	defaultTokensPallet   = "tokens"
	// psp22ProofSize bounds the proof size weight of contract calls.
	psp22ProofSize = 262_144
)

const erc20ABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",` +
	`"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],` +
	`"outputs":[{"name":"","type":"bool"}]}]`

var erc20 = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}

	return parsed
}()

func unhandled(t chaindata.TokenType) error {
	return errs.New(errs.CodeUnhandledTokenType, "Unhandled token type %s", t)
}

// Route selects the dispatch path of a token type.
func Route(t chaindata.TokenType) (provider.Family, error) {
	switch t {
	case chaindata.TokenTypeSubstrateNative,
		chaindata.TokenTypeSubstrateOrml,
		chaindata.TokenTypeSubstrateAssets,
		chaindata.TokenTypeSubstrateTokens,
		chaindata.TokenTypeSubstratePSP22,
		chaindata.TokenTypeSubstrateEquilibrium:
		return provider.FamilySubstrate, nil
	case chaindata.TokenTypeEVMNative, chaindata.TokenTypeEVMERC20:
		return provider.FamilyEVM, nil
	default:
		return "", unhandled(t)
	}
}

// evmCall is the destination, value and data of an EVM token transfer.
type evmCall struct {
	to    common.Address
	value *big.Int
	data  []byte
}

func buildEVMCall(token *chaindata.Token, dest common.Address, amount *big.Int) (*evmCall, error) {
	switch token.Type {
	case chaindata.TokenTypeEVMNative:
		return &evmCall{to: dest, value: amount}, nil
	case chaindata.TokenTypeEVMERC20:
		if !common.IsHexAddress(token.ContractAddress) {
			return nil, errs.InvalidPayload("token %s has no contract address", token.ID)
		}
		data, err := erc20.Pack("transfer", dest, amount)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode erc20 transfer")
		}

		return &evmCall{to: common.HexToAddress(token.ContractAddress), value: new(big.Int), data: data}, nil
	case chaindata.TokenTypeSubstrateNative,
		chaindata.TokenTypeSubstrateOrml,
		chaindata.TokenTypeSubstrateAssets,
		chaindata.TokenTypeSubstrateTokens,
		chaindata.TokenTypeSubstratePSP22,
		chaindata.TokenTypeSubstrateEquilibrium:
		return nil, errs.InvalidPayload("token %s is not an evm token", token.ID)
	default:
		return nil, unhandled(token.Type)
	}
}

// buildSubstrateCall encodes the transfer call of a substrate token using the chain's call indices.
func buildSubstrateCall(chain *chaindata.Chain, token *chaindata.Token, dest []byte, amount *big.Int, method string) ([]byte, error) {
	switch token.Type {
	case chaindata.TokenTypeSubstrateNative:
		switch method {
		case "transferKeepAlive", "transferAllowDeath":
		case "transfer":
			method = "transferAllowDeath"
		default:
			return nil, errs.InvalidPayload("unsupported transfer method %q", method)
		}
		index, err := chain.CallIndex("balances." + method)
		if err != nil {
			return nil, err
		}

		return extrinsic.BalancesTransfer(index, dest, amount)

	case chaindata.TokenTypeSubstrateOrml:
		return currencyCall(chain, token, defaultCurrencyPallet, dest, amount)

	case chaindata.TokenTypeSubstrateTokens:
		return currencyCall(chain, token, defaultTokensPallet, dest, amount)

	case chaindata.TokenTypeSubstrateAssets:
		assetID, ok := new(big.Int).SetString(token.OnChainID, 10)
		if !ok {
			return nil, errs.InvalidPayload("token %s has an invalid asset id %q", token.ID, token.OnChainID)
		}
		index, err := chain.CallIndex("assets.transferKeepAlive")
		if err != nil {
			return nil, err
		}

		return extrinsic.AssetsTransfer(index, assetID, dest, amount)

	case chaindata.TokenTypeSubstratePSP22:
		contract, err := address.AccountID(token.ContractAddress)
		if err != nil {
			return nil, errs.InvalidPayload("token %s has an invalid contract address", token.ID)
		}
		index, err := chain.CallIndex("contracts.call")
		if err != nil {
			return nil, err
		}

		data, err := extrinsic.PSP22Transfer(dest, amount)
		if err != nil {
			return nil, err
		}

		return extrinsic.ContractsCall(index, contract, token.GasLimit, psp22ProofSize, data)

	case chaindata.TokenTypeSubstrateEquilibrium:
		asset, err := strconv.ParseUint(token.OnChainID, 10, 64)
		if err != nil {
			return nil, errs.InvalidPayload("token %s has an invalid asset id %q", token.ID, token.OnChainID)
		}
		index, err := chain.CallIndex("eqBalances.transfer")
		if err != nil {
			return nil, err
		}

		return extrinsic.EquilibriumTransfer(index, asset, dest, amount)

	case chaindata.TokenTypeEVMNative, chaindata.TokenTypeEVMERC20:
		return nil, errs.InvalidPayload("token %s is not a substrate token", token.ID)

	default:
		return nil, unhandled(token.Type)
	}
}

func currencyCall(chain *chaindata.Chain, token *chaindata.Token, pallet string, dest []byte, amount *big.Int) ([]byte, error) {
	if token.Pallet != "" {
		pallet = token.Pallet
	}

	currencyID, err := extrinsic.FromHex(token.OnChainID)
	if err != nil || len(currencyID) == 0 {
		return nil, errs.InvalidPayload("token %s has an invalid currency id %q", token.ID, token.OnChainID)
	}

	index, err := chain.CallIndex(pallet + ".transfer")
	if err != nil {
		return nil, err
	}

	return extrinsic.CurrencyTransfer(index, dest, currencyID, amount)
}

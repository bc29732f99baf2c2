package dispatch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const (
	defaultNativeGas   = 21000
	defaultContractGas = 100000
)

// evmSend is a transaction to build, sign and broadcast.
type evmSend struct {
	network  *chaindata.EVMNetwork
	from     common.Address
	to       *common.Address
	value    *big.Int
	data     []byte
	gas      uint64
	settings *fee.GasSettings
	priority fee.Priority
	transfer *watcher.TransferInfo
}

func (d *dispatcher) Transfer(ctx context.Context, p *request.AssetTransferPayload, cred keyring.Credential) (*Result, error) {
	token, err := d.reg.GetToken(p.TokenID)
	if err != nil {
		return nil, err
	}

	family, err := Route(token.Type)
	if err != nil {
		return nil, err
	}

	switch family {
	case provider.FamilyEVM:
		return d.TransferEth(ctx, p, cred)
	case provider.FamilySubstrate:
		return d.transferSubstrate(ctx, token, p, cred)
	}

	return nil, unhandled(token.Type)
}

func (d *dispatcher) TransferEth(ctx context.Context, p *request.AssetTransferPayload, cred keyring.Credential) (*Result, error) {
	send, err := d.evmTransfer(p)
	if err != nil {
		return nil, err
	}

	return d.sendEVM(ctx, send, cred)
}

// evmTransfer validates an EVM token transfer without touching the network.
func (d *dispatcher) evmTransfer(p *request.AssetTransferPayload) (*evmSend, error) {
	token, err := d.reg.GetToken(p.TokenID)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(p.FromAddress) || !common.IsHexAddress(p.ToAddress) {
		return nil, errs.InvalidPayload("evm transfers need hex addresses")
	}

	amount, err := request.ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	dest := common.HexToAddress(p.ToAddress)
	call, err := buildEVMCall(token, dest, amount)
	if err != nil {
		return nil, err
	}

	network, err := d.reg.GetEVMNetwork(token.EVMNetworkID)
	if err != nil {
		return nil, err
	}
	if p.ChainID != "" && p.ChainID != network.ID {
		return nil, errs.InvalidPayload("token %s is not on network %s", token.ID, p.ChainID)
	}

	return &evmSend{
		network:  network,
		from:     common.HexToAddress(p.FromAddress),
		to:       &call.to,
		value:    call.value,
		data:     call.data,
		settings: p.GasSettings,
		priority: p.Priority,
		transfer: &watcher.TransferInfo{
			TokenID:  token.ID,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Amount:   amount.String(),
			To:       dest.Hex(),
		},
	}, nil
}

func (d *dispatcher) SendEth(ctx context.Context, p *request.EthSendPayload, settings *fee.GasSettings, cred keyring.Credential) (*Result, error) {
	network, err := d.reg.GetEVMNetwork(p.EVMNetworkID)
	if err != nil {
		return nil, err
	}

	send := &evmSend{
		network:  network,
		from:     common.HexToAddress(p.Tx.From),
		to:       p.Tx.To,
		value:    new(big.Int),
		data:     p.Tx.Data,
		settings: settings,
	}
	if p.Tx.Value != nil {
		send.value = p.Tx.Value.ToInt()
	}
	if p.Tx.Gas != nil {
		send.gas = uint64(*p.Tx.Gas)
	}
	if send.settings == nil {
		send.settings = p.Tx.GasSettings()
	}

	return d.sendEVM(ctx, send, cred)
}

func (d *dispatcher) sendEVM(ctx context.Context, s *evmSend, cred keyring.Credential) (*Result, error) {
	log := util.LogFromContext(ctx).With().Str("network", s.network.ID).Str("from", s.from.Hex()).Logger()

	client, err := d.pool.EVM(ctx, s.network.ID)
	if err != nil {
		return nil, err
	}

	sig, err := d.signers.GetUnlockedSigner(ctx, s.from.Hex(), cred)
	if err != nil {
		return nil, err
	}
	defer sig.Wipe()

	if sig.EVMAddress() != s.from {
		return nil, errs.New(errs.CodeUnauthorized, "no key for %s", s.from.Hex())
	}

	gas := d.gasLimit(ctx, client, s)
	settings, err := d.feeSettings(ctx, s, gas)
	if err != nil {
		return nil, err
	}

	chainID := big.NewInt(s.network.ChainIDInt())
	key := nonce.NewKey(s.from.Hex(), s.network.ID)
	n, err := d.nonces.Allocate(ctx, key, client)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNoProviderForNetwork, "failed to read nonce")
	}

	signed, err := sig.SignEVMTransaction(newEVMTx(chainID, n, s, settings), chainID)
	if err != nil {
		_ = d.nonces.Release(key, n)
		return nil, errors.Wrap(err, "failed to sign transaction")
	}

	if err := encodable(signed); err != nil {
		_ = d.nonces.Release(key, n)
		return nil, err
	}

	sendErr := client.SendTransaction(ctx, signed)
	if err := d.settle(ctx, provider.FamilyEVM, s.network.ID, d.failEVM(s.network.ID, client), key, n, sendErr); err != nil {
		log.Error().Err(sendErr).Uint64("nonce", n).Msg("Failed to send transaction")
		return nil, err
	}

	hash := signed.Hash().Hex()
	log.Info().Str("hash", hash).Uint64("nonce", n).Msg("Transaction sent")

	d.track(ctx, &watcher.Record{
		Hash:         hash,
		Family:       provider.FamilyEVM,
		NetworkID:    s.network.ID,
		From:         key.Address,
		Nonce:        n,
		TransferInfo: s.transfer,
	})

	return &Result{Hash: hash}, nil
}

// gasLimit prefers explicit limits, then the node's estimate, then the defaults.
func (d *dispatcher) gasLimit(ctx context.Context, client provider.EVMClient, s *evmSend) uint64 {
	if s.gas > 0 {
		return s.gas
	}
	if s.settings != nil && s.settings.Gas > 0 {
		return s.settings.Gas
	}

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: s.to, Value: s.value, Data: s.data})
	if err == nil && gas > 0 {
		return gas
	}

	util.LogFromContext(ctx).Debug().Err(err).Str("network", s.network.ID).Msg("Gas estimation failed, using default limit")
	if len(s.data) == 0 {
		return defaultNativeGas
	}

	return defaultContractGas
}

// feeSettings reuses caller supplied fee fields verbatim, otherwise estimates.
func (d *dispatcher) feeSettings(ctx context.Context, s *evmSend, gas uint64) (*fee.GasSettings, error) {
	if s.settings != nil {
		if err := s.settings.Validate(); err != nil {
			return nil, err
		}
		out := *s.settings
		out.Gas = gas

		return &out, nil
	}

	est, err := d.fees.Estimate(ctx, s.network.ID, priorityOrDefault(s.priority), nil)
	if err != nil {
		return nil, err
	}

	return est.Settings(gas), nil
}

func priorityOrDefault(p fee.Priority) fee.Priority {
	if p == "" {
		return fee.PriorityMedium
	}

	return p
}

// encodable fails for transactions the client would reject before sending anything to the node.
func encodable(tx *types.Transaction) error {
	if _, err := tx.MarshalBinary(); err != nil {
		return errs.InvalidPayload("transaction cannot be encoded: %v", err)
	}

	return nil
}

func newEVMTx(chainID *big.Int, n uint64, s *evmSend, settings *fee.GasSettings) *types.Transaction {
	if settings.Type == fee.TypeLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    n,
			GasPrice: settings.GasPrice,
			Gas:      settings.Gas,
			To:       s.to,
			Value:    s.value,
			Data:     s.data,
		})
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     n,
		GasTipCap: settings.MaxPriorityFeePerGas,
		GasFeeCap: settings.MaxFeePerGas,
		Gas:       settings.Gas,
		To:        s.to,
		Value:     s.value,
		Data:      s.data,
	})
}

func (d *dispatcher) checkEVMFees(ctx context.Context, p *request.AssetTransferPayload) (*FeeQuote, error) {
	s, err := d.evmTransfer(p)
	if err != nil {
		return nil, err
	}

	client, err := d.pool.EVM(ctx, s.network.ID)
	if err != nil {
		return nil, err
	}

	gas := d.gasLimit(ctx, client, s)

	var est *fee.Estimate
	if s.settings != nil {
		est, err = d.fees.Estimate(ctx, s.network.ID, fee.PriorityCustom, s.settings)
	} else {
		est, err = d.fees.Estimate(ctx, s.network.ID, priorityOrDefault(s.priority), nil)
	}
	if err != nil {
		return nil, err
	}

	n, err := d.nonces.Peek(ctx, nonce.NewKey(s.from.Hex(), s.network.ID), client)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}

	suggested, maximum := est.Total(gas)

	return &FeeQuote{
		Family:    provider.FamilyEVM,
		Suggested: suggested,
		Maximum:   maximum,
		Gas:       gas,
		Estimate:  est,
		Nonce:     n,
		Symbol:    d.nativeSymbol(s.network.NativeTokenID),
	}, nil
}

func (d *dispatcher) nativeSymbol(tokenID string) string {
	token, err := d.reg.GetToken(tokenID)
	if err != nil {
		return ""
	}

	return token.Symbol
}

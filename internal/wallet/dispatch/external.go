package dispatch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const multiSignatureECDSA = 0x02

func (d *dispatcher) TransferEthHardware(ctx context.Context, p *request.AssetTransferHardwarePayload, signedTx string) (*Result, error) {
	network, err := d.reg.GetEVMNetwork(p.EVMNetworkID)
	if err != nil {
		return nil, err
	}
	token, err := d.reg.GetToken(p.TokenID)
	if err != nil {
		return nil, err
	}
	if token.EVMNetworkID != network.ID {
		return nil, errs.InvalidPayload("token %s is not on network %s", token.ID, network.ID)
	}

	if signedTx == "" {
		signedTx = p.SignedTransaction
	}
	raw, err := hexutil.Decode(signedTx)
	if err != nil {
		return nil, errs.InvalidPayload("signed transaction must be 0x prefixed hex")
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, errs.InvalidPayload("invalid signed transaction: %v", err)
	}

	chainID := big.NewInt(network.ChainIDInt())
	if tx.ChainId().Sign() != 0 && tx.ChainId().Cmp(chainID) != 0 {
		return nil, errs.InvalidPayload("transaction is signed for chain %s, not %s", tx.ChainId(), network.ID)
	}
	if tx.To() == nil {
		return nil, errs.InvalidPayload("Unable to transfer - no recipient address given")
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, errs.InvalidPayload("invalid transaction signature: %v", err)
	}
	if !common.IsHexAddress(p.Unsigned.From) || common.HexToAddress(p.Unsigned.From) != from {
		return nil, errs.InvalidPayload("transaction is not signed by %s", p.Unsigned.From)
	}
	if _, err := d.accounts.GetAccountByAddress(ctx, from.Hex()); err != nil {
		return nil, err
	}

	client, err := d.pool.EVM(ctx, network.ID)
	if err != nil {
		return nil, err
	}

	key := nonce.NewKey(from.Hex(), network.ID)
	sendErr := client.SendTransaction(ctx, tx)
	if err := d.settleExternal(ctx, provider.FamilyEVM, d.failEVM(network.ID, client), key, tx.Nonce(), sendErr); err != nil {
		util.LogFromContext(ctx).Error().Err(sendErr).Str("network", network.ID).Msg("Failed to send hardware signed transaction")
		return nil, err
	}

	hash := tx.Hash().Hex()
	to := p.ToAddress
	if to == "" {
		to = tx.To().Hex()
	}

	d.track(ctx, &watcher.Record{
		Hash:      hash,
		Family:    provider.FamilyEVM,
		NetworkID: network.ID,
		From:      key.Address,
		Nonce:     tx.Nonce(),
		TransferInfo: &watcher.TransferInfo{
			TokenID:  token.ID,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Amount:   p.Amount,
			To:       to,
		},
	})

	return &Result{Hash: hash}, nil
}

func (d *dispatcher) ApproveSign(ctx context.Context, p *request.AssetTransferApproveSignPayload, signature string) (*Result, error) {
	pl, err := p.Unsigned.Payload()
	if err != nil {
		return nil, err
	}

	chain, err := d.reg.GetChain(chaindata.ChainSelector{GenesisHash: p.Unsigned.GenesisHash})
	if err != nil {
		return nil, errors.Wrapf(err, "Could not find chain for genesisHash %s", p.Unsigned.GenesisHash)
	}

	if signature == "" {
		signature = p.Signature
	}
	sig, err := extrinsic.FromHex(signature)
	if err != nil {
		return nil, err
	}
	// MultiSignature encoded signatures carry their scheme byte.
	if len(sig) == signatureLength+1 && sig[0] == multiSignatureECDSA {
		sig = sig[1:]
	}
	if len(sig) != signatureLength {
		return nil, errs.InvalidPayload("expected a 65 byte ecdsa signature, got %d bytes", len(sig))
	}

	from, err := address.AccountID(p.Unsigned.Address)
	if err != nil {
		return nil, errs.InvalidPayload("invalid signer address %q", p.Unsigned.Address)
	}

	ext, err := pl.Signed(from, sig)
	if err != nil {
		return nil, err
	}

	sub, err := d.pool.Substrate(ctx, chain.ID)
	if err != nil {
		return nil, err
	}

	header, err := sub.Header(ctx)
	if err != nil {
		return nil, err
	}
	head, err := header.BlockNumber()
	if err != nil {
		return nil, errors.Wrap(err, "invalid header number")
	}

	key := substrateKey(from, chain.ID)
	_, sendErr := sub.SubmitExtrinsic(ctx, extrinsic.ToHex(ext))
	if err := d.settleExternal(ctx, provider.FamilySubstrate, d.failSubstrate(chain.ID, sub), key, pl.Nonce, sendErr); err != nil {
		util.LogFromContext(ctx).Error().Err(sendErr).Str("chain", chain.ID).Msg("Failed to submit externally signed extrinsic")
		return nil, err
	}

	hash := extrinsic.Hash(ext)
	d.track(ctx, &watcher.Record{
		Hash:         hash,
		Family:       provider.FamilySubstrate,
		NetworkID:    chain.ID,
		From:         key.Address,
		Nonce:        pl.Nonce,
		FromBlock:    head,
		TransferInfo: p.TransferInfo,
	})

	return &Result{Hash: hash}, nil
}

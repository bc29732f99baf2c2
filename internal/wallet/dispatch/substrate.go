package dispatch

import (
	"bytes"
	"context"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const signatureLength = 65

// substrateSource reads the next account index as the authoritative nonce.
type substrateSource struct {
	sub     *provider.Substrate
	address string
}

func (s substrateSource) PendingNonceAt(ctx context.Context, _ common.Address) (uint64, error) {
	return s.sub.AccountNextIndex(ctx, s.address)
}

func substrateKey(accountID []byte, chainID string) nonce.Key {
	return nonce.NewKey("0x"+hex.EncodeToString(accountID), chainID)
}

// substrateSend is a validated substrate transfer.
type substrateSend struct {
	chain  *chaindata.Chain
	token  *chaindata.Token
	from   []byte
	call   []byte
	amount *big.Int
	tip    *big.Int
}

func (d *dispatcher) substrateTransfer(token *chaindata.Token, p *request.AssetTransferPayload) (*substrateSend, error) {
	chain, err := d.reg.GetChain(chaindata.ChainSelector{ID: token.ChainID})
	if err != nil {
		return nil, err
	}
	if p.ChainID != "" && p.ChainID != chain.ID {
		return nil, errs.InvalidPayload("token %s is not on chain %s", token.ID, p.ChainID)
	}

	from, err := address.AccountID(p.FromAddress)
	if err != nil {
		return nil, errs.InvalidPayload("invalid sender %q", p.FromAddress)
	}
	dest, err := address.AccountID(p.ToAddress)
	if err != nil {
		return nil, errs.InvalidPayload("invalid recipient %q", p.ToAddress)
	}

	amount, err := request.ParseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	tip := new(big.Int)
	if p.Tip != "" {
		if tip, err = request.ParseAmount(p.Tip); err != nil {
			return nil, err
		}
	}

	call, err := buildSubstrateCall(chain, token, dest, amount, p.TransferMethod())
	if err != nil {
		return nil, err
	}

	return &substrateSend{chain: chain, token: token, from: from, call: call, amount: amount, tip: tip}, nil
}

func (s *substrateSend) source(sub *provider.Substrate) substrateSource {
	return substrateSource{sub: sub, address: address.EncodeSS58(s.from, s.chain.SS58Prefix)}
}

// payload builds an immortal signing payload for the current runtime.
func (d *dispatcher) payload(ctx context.Context, sub *provider.Substrate, chain *chaindata.Chain, call []byte, tip *big.Int) (*extrinsic.Payload, error) {
	version, err := sub.RuntimeVersion(ctx)
	if err != nil {
		return nil, err
	}

	genesis, err := extrinsic.FromHex(chain.GenesisHash)
	if err != nil {
		return nil, err
	}

	return &extrinsic.Payload{
		Method:             call,
		Era:                extrinsic.ImmortalEra,
		Tip:                tip,
		SpecVersion:        version.SpecVersion,
		TransactionVersion: version.TransactionVersion,
		GenesisHash:        genesis,
		BlockHash:          genesis,
		MetadataHash:       chain.MetadataHash,
	}, nil
}

func (d *dispatcher) transferSubstrate(ctx context.Context, token *chaindata.Token, p *request.AssetTransferPayload, cred keyring.Credential) (*Result, error) {
	s, err := d.substrateTransfer(token, p)
	if err != nil {
		return nil, err
	}

	log := util.LogFromContext(ctx).With().Str("chain", s.chain.ID).Str("token", token.ID).Logger()

	sub, err := d.pool.Substrate(ctx, s.chain.ID)
	if err != nil {
		return nil, err
	}

	sig, err := d.signers.GetUnlockedSigner(ctx, p.FromAddress, cred)
	if err != nil {
		return nil, err
	}
	defer sig.Wipe()

	if !bytes.Equal(sig.SubstrateAccountID(), s.from) {
		return nil, errs.New(errs.CodeUnauthorized, "no key for %s", p.FromAddress)
	}

	header, err := sub.Header(ctx)
	if err != nil {
		return nil, err
	}
	head, err := header.BlockNumber()
	if err != nil {
		return nil, errors.Wrap(err, "invalid header number")
	}

	pl, err := d.payload(ctx, sub, s.chain, s.call, s.tip)
	if err != nil {
		return nil, err
	}

	key := substrateKey(s.from, s.chain.ID)
	n, err := d.nonces.Allocate(ctx, key, s.source(sub))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNoProviderForNetwork, "failed to read account index")
	}
	pl.Nonce = n

	message, err := pl.SigningMessage()
	if err != nil {
		_ = d.nonces.Release(key, n)
		return nil, err
	}
	signature, err := sig.SignSubstrate(message)
	if err != nil {
		_ = d.nonces.Release(key, n)
		return nil, errors.Wrap(err, "failed to sign extrinsic")
	}

	ext, err := pl.Signed(s.from, signature)
	if err != nil {
		_ = d.nonces.Release(key, n)
		return nil, err
	}

	_, sendErr := sub.SubmitExtrinsic(ctx, extrinsic.ToHex(ext))
	if err := d.settle(ctx, provider.FamilySubstrate, s.chain.ID, d.failSubstrate(s.chain.ID, sub), key, n, sendErr); err != nil {
		log.Error().Err(sendErr).Uint64("nonce", n).Msg("Error sending substrate transaction")
		return nil, err
	}

	hash := extrinsic.Hash(ext)
	log.Info().Str("hash", hash).Uint64("nonce", n).Msg("Extrinsic submitted")

	d.track(ctx, &watcher.Record{
		Hash:      hash,
		Family:    provider.FamilySubstrate,
		NetworkID: s.chain.ID,
		From:      key.Address,
		Nonce:     n,
		FromBlock: head,
		TransferInfo: &watcher.TransferInfo{
			TokenID:  token.ID,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Amount:   s.amount.String(),
			To:       p.ToAddress,
		},
	})

	return &Result{Hash: hash}, nil
}

// checkSubstrateFees queries the fee of the transfer signed with a zero signature. No key is
// needed and no nonce is allocated.
func (d *dispatcher) checkSubstrateFees(ctx context.Context, token *chaindata.Token, p *request.AssetTransferPayload) (*FeeQuote, error) {
	s, err := d.substrateTransfer(token, p)
	if err != nil {
		return nil, err
	}

	sub, err := d.pool.Substrate(ctx, s.chain.ID)
	if err != nil {
		return nil, err
	}

	n, err := d.nonces.Peek(ctx, substrateKey(s.from, s.chain.ID), s.source(sub))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}

	pl, err := d.payload(ctx, sub, s.chain, s.call, s.tip)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}
	pl.Nonce = n

	ext, err := pl.Signed(s.from, make([]byte, signatureLength))
	if err != nil {
		return nil, err
	}

	info, err := sub.QueryInfo(ctx, extrinsic.ToHex(ext))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}
	partial, err := info.Fee()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}

	total := new(big.Int).Add(partial, s.tip)

	return &FeeQuote{
		Family:    provider.FamilySubstrate,
		Suggested: total,
		Maximum:   new(big.Int).Set(total),
		Nonce:     n,
		Symbol:    d.nativeSymbol(s.chain.NativeTokenID),
	}, nil
}

func (d *dispatcher) CheckFees(ctx context.Context, p *request.AssetTransferPayload) (*FeeQuote, error) {
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
		return d.checkEVMFees(ctx, p)
	case provider.FamilySubstrate:
		return d.checkSubstrateFees(ctx, token, p)
	}

	return nil, unhandled(token.Type)
}

package watcher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

var errSubscriptionLost = errors.New("head subscription lost")

// trackEVM polls for the receipt, waking early on new heads in subscribe mode.
func (w *watcher) trackEVM(ctx context.Context, rec *Record, mode Mode) error {
	hash := common.HexToHash(rec.Hash)
	from := common.HexToAddress(rec.From)
	bo := w.newBackoff()

	var (
		heads chan *types.Header
		sub   ethereum.Subscription
	)
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	for {
		client, err := w.pool.EVM(ctx, rec.NetworkID)
		if err == nil && mode == ModeSubscribe && sub == nil {
			heads = make(chan *types.Header, 16)
			if sub, err = client.SubscribeNewHead(ctx, heads); err != nil {
				w.log.Debug().Err(err).Str("hash", rec.Hash).Msg("Head subscription unavailable, polling")
				sub, heads, mode, err = nil, nil, ModePoll, nil
			}
		}

		var status Status
		if err == nil {
			status, err = w.checkEVM(ctx, client, rec, hash, from)
		}

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if client != nil {
				w.pool.FailEVM(rec.NetworkID, client, err)
			}

			var ok bool
			if delay, ok = bo.fail(); !ok {
				return errors.Wrapf(err, "gave up after %d attempts", bo.attempts)
			}
		case status.Terminal():
			return w.finish(rec, status)
		default:
			delay = bo.reset()
		}

		if err := w.wait(ctx, delay, heads, sub); err != nil {
			if !errors.Is(err, errSubscriptionLost) {
				return err
			}
			sub.Unsubscribe()
			sub, heads, mode = nil, nil, ModePoll
		}
	}
}

func (w *watcher) checkEVM(ctx context.Context, client provider.EVMClient, rec *Record, hash common.Hash, from common.Address) (Status, error) {
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err == nil {
		rec.BlockHash = receipt.BlockHash.Hex()
		if receipt.BlockNumber != nil {
			rec.BlockNumber = receipt.BlockNumber.Uint64()
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return StatusConfirmed, nil
		}

		return StatusFailed, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return "", errors.Wrap(err, "failed to get receipt")
	}

	mined, err := client.NonceAt(ctx, from, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to get nonce")
	}
	if mined <= rec.Nonce {
		return StatusBroadcast, nil
	}

	// The nonce was consumed. Look once more in case the receipt landed in between.
	if _, err := client.TransactionReceipt(ctx, hash); err == nil {
		return w.checkEVM(ctx, client, rec, hash, from)
	}

	return StatusDropped, nil
}

func (w *watcher) wait(ctx context.Context, d time.Duration, heads <-chan *types.Header, sub ethereum.Subscription) error {
	if heads == nil {
		return sleep(ctx, d)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-heads:
	case <-sub.Err():
		return errSubscriptionLost
	}

	return nil
}

package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/extrinsic"
	"github/chapool/wallet-broker/internal/wallet/provider"
)

// trackSubstrate scans blocks from rec.FromBlock for the extrinsic hash.
func (w *watcher) trackSubstrate(ctx context.Context, rec *Record) error {
	next := rec.FromBlock
	bo := w.newBackoff()

	for {
		var (
			status  Status
			scanned uint64
		)
		sub, err := w.pool.Substrate(ctx, rec.NetworkID)
		if err == nil {
			status, scanned, err = w.scanSubstrate(ctx, sub, rec, next)
		}

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if sub != nil {
				w.pool.FailSubstrate(rec.NetworkID, sub, err)
			}

			var ok bool
			if delay, ok = bo.fail(); !ok {
				return errors.Wrapf(err, "gave up after %d attempts", bo.attempts)
			}
		case status.Terminal():
			return w.finish(rec, status)
		default:
			next = scanned
			delay = bo.reset()
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// scanSubstrate looks at blocks [from, head] and returns the next block to scan.
func (w *watcher) scanSubstrate(ctx context.Context, sub *provider.Substrate, rec *Record, from uint64) (Status, uint64, error) {
	header, err := sub.Header(ctx)
	if err != nil {
		return "", from, err
	}
	head, err := header.BlockNumber()
	if err != nil {
		return "", from, errors.Wrap(err, "invalid header number")
	}

	for n := from; n <= head; n++ {
		blockHash, err := sub.BlockHash(ctx, n)
		if err != nil {
			return "", n, err
		}
		block, err := sub.Block(ctx, blockHash)
		if err != nil {
			return "", n, err
		}

		if containsExtrinsic(block.Extrinsics, rec.Hash) {
			rec.BlockHash = blockHash
			rec.BlockNumber = n

			return StatusConfirmed, n + 1, nil
		}
	}

	if head < rec.FromBlock+w.blockWindow {
		return StatusBroadcast, head + 1, nil
	}

	pending, err := sub.PendingExtrinsics(ctx)
	if err != nil {
		return "", head + 1, err
	}
	if containsExtrinsic(pending, rec.Hash) {
		return StatusBroadcast, head + 1, nil
	}

	return StatusDropped, head + 1, nil
}

func containsExtrinsic(extrinsics []string, hash string) bool {
	for _, ext := range extrinsics {
		raw, err := extrinsic.FromHex(ext)
		if err != nil {
			continue
		}
		if strings.EqualFold(extrinsic.Hash(raw), hash) {
			return true
		}
	}

	return false
}

package tx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/util/command"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const (
	liveFlag    = "live"
	recheckFlag = "recheck"

	recheckTimeout = 5 * time.Minute
)

// transferEventSig is the topic of ERC20 Transfer(address,address,uint256).
var transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

func newCheck() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <hash>",
		Short: "Prints the watcher record of a broadcast transaction",
		Long: `Prints the stored watcher record of a transaction. With --live the receipt of an EVM
transaction is fetched from the network as well; with --recheck a record left in broadcast is
watched again until it reaches a terminal status.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			live, _ := cmd.Flags().GetBool(liveFlag)
			recheck, _ := cmd.Flags().GetBool(recheckFlag)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			return command.WithServer(ctx, config.DefaultServiceConfigFromEnv(), func(ctx context.Context, s *api.Server) error {
				return check(ctx, s, cmd.OutOrStdout(), args[0], live, recheck)
			})
		},
	}

	cmd.Flags().Bool(liveFlag, false, "Fetch the receipt of EVM transactions from the network.")
	cmd.Flags().Bool(recheckFlag, false, "Watch a record left in broadcast until it is terminal.")

	return cmd
}

func check(ctx context.Context, s *api.Server, out io.Writer, hash string, live bool, recheck bool) error {
	rec, err := s.Watcher.Get(ctx, hash)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}
	fmt.Fprintln(out, string(b))

	if live && rec.Family == provider.FamilyEVM {
		if err := printReceipt(ctx, s, out, rec); err != nil {
			return err
		}
	}

	if !recheck || rec.Status.Terminal() {
		return nil
	}

	if err := s.Watcher.Recheck(ctx, hash); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, recheckTimeout)
	defer cancel()

	ticker := time.NewTicker(s.Config.Watcher.PollInterval)
	defer ticker.Stop()

	for !rec.Status.Terminal() {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "transaction %s still in %s", hash, rec.Status)
		case <-ticker.C:
		}

		rec, err = s.Watcher.Get(ctx, hash)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Status after recheck: %s\n", rec.Status)

	return nil
}

func printReceipt(ctx context.Context, s *api.Server, out io.Writer, rec *watcher.Record) error {
	client, err := s.Pool.EVM(ctx, rec.NetworkID)
	if err != nil {
		return err
	}

	txHash := common.HexToHash(rec.Hash)
	tx, isPending, err := client.TransactionByHash(ctx, txHash)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if isPending {
		fmt.Fprintln(out, "Transaction is still pending")
		return nil
	}

	receipt, err := client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return errors.Wrap(err, "failed to get receipt")
	}

	fmt.Fprintf(out, "Block Number: %s\n", receipt.BlockNumber)
	fmt.Fprintf(out, "Block Hash:   %s\n", receipt.BlockHash.Hex())
	fmt.Fprintf(out, "Status:       %d\n", receipt.Status)
	fmt.Fprintf(out, "Gas Used:     %d\n", receipt.GasUsed)

	if chainID := tx.ChainId(); chainID != nil {
		if from, err := types.Sender(types.LatestSignerForChainID(chainID), tx); err == nil {
			fmt.Fprintf(out, "From:         %s\n", from.Hex())
		}
	}
	if to := tx.To(); to != nil {
		fmt.Fprintf(out, "To:           %s\n", to.Hex())
	} else {
		fmt.Fprintln(out, "To:           contract creation")
	}
	fmt.Fprintf(out, "Value:        %s wei\n", tx.Value())

	for i, l := range receipt.Logs {
		if len(l.Topics) < 3 || l.Topics[0] != transferEventSig {
			continue
		}

		fmt.Fprintf(out, "Log #%d: ERC20 Transfer of %s\n", i, l.Address.Hex())
		fmt.Fprintf(out, "  From:   %s\n", common.BytesToAddress(l.Topics[1].Bytes()).Hex())
		fmt.Fprintf(out, "  To:     %s\n", common.BytesToAddress(l.Topics[2].Bytes()).Hex())
		fmt.Fprintf(out, "  Amount: %s\n", new(big.Int).SetBytes(l.Data))
	}

	return nil
}

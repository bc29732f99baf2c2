package watcher

import (
	"context"
	"time"

	"github/chapool/wallet-broker/internal/wallet/provider"
)

type Status string

const (
	StatusBroadcast Status = "broadcast"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusDropped   Status = "dropped"
)

func (s Status) Terminal() bool {
	return s != StatusBroadcast
}

// Mode selects how inclusion is detected.
type Mode string

const (
	ModePoll      Mode = "poll"
	ModeSubscribe Mode = "subscribe"
)

// TransferInfo describes a token transfer for the confirmation notification.
type TransferInfo struct {
	TokenID  string `json:"tokenId"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	// Amount in the smallest unit.
	Amount string `json:"amount"`
	To     string `json:"to"`
}

// Record is a broadcast transaction. Records are never deleted, only marked terminal.
type Record struct {
	Hash      string          `json:"hash"`
	Family    provider.Family `json:"family"`
	NetworkID string          `json:"networkId"`
	// From is the normalised sender address, the same value the nonce registry is keyed by.
	From         string        `json:"from"`
	Nonce        uint64        `json:"nonce"`
	Status       Status        `json:"status"`
	TransferInfo *TransferInfo `json:"transferInfo,omitempty"`
	// FromBlock is the substrate block number seen just before submission.
	FromBlock   uint64    `json:"fromBlock,omitempty"`
	BlockHash   string    `json:"blockHash,omitempty"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Watcher tracks broadcast transactions until they reach a terminal status.
type Watcher interface {
	// Watch persists rec and tracks it in the background.
	Watch(ctx context.Context, rec *Record, mode Mode) error

	Get(ctx context.Context, hash string) (*Record, error)

	// Recheck restarts tracking of a record left in broadcast.
	Recheck(ctx context.Context, hash string) error

	// Resume tracks every stored record still in broadcast.
	Resume(ctx context.Context) error

	// Close stops tracking and waits for background work to finish.
	Close()
}

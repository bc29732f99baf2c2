package nonce

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key identifies a nonce slot.
type Key struct {
	Address   string
	NetworkID string
}

// NewKey canonicalises the address so differently cased inputs share a slot.
func NewKey(address string, networkID string) Key {
	return Key{Address: strings.ToLower(address), NetworkID: networkID}
}

func (k Key) String() string {
	return k.NetworkID + "/" + k.Address
}

// Source is the authoritative on-chain nonce reader, usually the network's EVM client.
type Source interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Registry allocates strictly increasing nonces per (address, network).
type Registry interface {
	// Allocate waits until no other allocation for key is in flight, then returns the next nonce.
	// The slot stays held until Commit or Release is called with the returned value.
	Allocate(ctx context.Context, key Key, src Source) (uint64, error)

	// Commit marks the in-flight nonce as consumed (broadcast, or broadcast outcome unknown).
	Commit(key Key, nonce uint64) error

	// Release rolls the in-flight nonce back. Only valid for the nonce returned by the last Allocate.
	Release(key Key, nonce uint64) error

	// Peek returns the nonce the next Allocate would return without allocating or seeding.
	Peek(ctx context.Context, key Key, src Source) (uint64, error)

	// Observe records a nonce consumed outside the registry, e.g. by a hardware-signed transaction.
	Observe(key Key, nonce uint64)

	// Forget drops the slot so the next Allocate reseeds from the chain.
	Forget(key Key)
}

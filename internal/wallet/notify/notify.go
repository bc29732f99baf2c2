// Package notify fans broker events out to subscribed approver sessions and registered sinks.
package notify

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventRequestCreated    EventType = "request-created"
	EventTransferConfirmed EventType = "transfer-confirmed"
	EventTransferFailed    EventType = "transfer-failed"
)

type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	NetworkID string    `json:"networkId,omitempty"`
	// Amount is formatted in whole token units.
	Amount string    `json:"amount,omitempty"`
	Symbol string    `json:"symbol,omitempty"`
	To     string    `json:"to,omitempty"`
	At     time.Time `json:"at"`
}

// Sink is the fire-and-forget notification collaborator.
type Sink interface {
	Notify(ev Event)
}

// Notifier delivers events to every subscriber and sink.
type Notifier struct {
	feed event.Feed

	mu    sync.RWMutex
	sinks []Sink
}

func New() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	n.feed.Send(ev)

	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, s := range n.sinks {
		s.Notify(ev)
	}
}

// AddSink registers s for every later event. Sinks must not block.
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sinks = append(n.sinks, s)
}

// Subscribe delivers events to ch until the subscription is closed. Slow receivers block senders,
// so ch should be buffered and drained.
func (n *Notifier) Subscribe(ch chan<- Event) event.Subscription {
	return n.feed.Subscribe(ch)
}

// FormatAmount renders an integer amount of the smallest unit with the token's decimals.
func FormatAmount(amount string, decimals int32) string {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return amount
	}

	return decimal.NewFromBigInt(v, -decimals).String()
}

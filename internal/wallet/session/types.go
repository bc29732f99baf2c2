package session

import (
	"context"
	"time"

	"github/chapool/wallet-broker/internal/wallet/request"
)

// Kind is the kind of context holding the port.
type Kind string

const (
	KindPage       Kind = "page"
	KindPopup      Kind = "popup"
	KindBackground Kind = "background"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindPage, KindPopup, KindBackground:
		return k, true
	}

	return "", false
}

// Privileged reports whether sessions of this kind may call pri(...) operations.
func (k Kind) Privileged() bool {
	return k == KindPopup || k == KindBackground
}

// Session is a snapshot of an open port session.
type Session struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Origin   string    `json:"origin"`
	OpenedAt time.Time `json:"openedAt"`
	// Requests created through the session, in creation order.
	Requests []string `json:"requests"`
}

// Hook runs once when its session closes.
type Hook func()

// Manager is the registry of open sessions. Closing a session synchronously cancels every pending
// request created through it.
type Manager interface {
	Open(ctx context.Context, kind Kind, origin string) (*Session, error)

	Get(id string) (*Session, error)

	// Close tears the session down. Closing an unknown or already closed session is a no-op.
	Close(ctx context.Context, id string)

	// Bind associates a request with the session. Fails with SessionClosed once closing started.
	Bind(id string, requestID string) error

	// CreateRequest creates a broker request on behalf of the session and binds it atomically
	// with respect to Close.
	CreateRequest(ctx context.Context, id string, p request.CreateParams) (string, error)

	// OnClose registers a teardown hook. Fails with SessionClosed if the session is gone.
	OnClose(id string, hook Hook) error

	// Privileged fails with Unauthorized unless the session may call privileged operations.
	Privileged(id string) error

	Count() int

	// CloseAll closes every open session.
	CloseAll(ctx context.Context)
}

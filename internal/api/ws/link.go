// Package ws runs the websocket connection behind a port session.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/util"
)

const (
	// outBufferSize is the size of the link's queue of outgoing messages.
	outBufferSize  = 128
	writeWait      = 5 * time.Second
	maxMessageSize = 1 << 20
)

var ErrLinkClosed = errors.New("link closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Pages of any origin may connect; what they can do is decided by the session kind.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Upgrade upgrades the HTTP request. On failure the upgrader already answered the request.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Conn is satisfied by *websocket.Conn.
type Conn interface {
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// Handler receives every inbound text message. It runs on the read loop and must not block.
type Handler func(ctx context.Context, msg []byte)

// Link is one websocket peer.
type Link struct {
	addr       string
	conn       Conn
	pingPeriod time.Duration
	handler    Handler
	log        zerolog.Logger

	out      chan []byte
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLink(addr string, conn Conn, pingPeriod time.Duration, handler Handler) *Link {
	return &Link{
		addr:       addr,
		conn:       conn,
		pingPeriod: pingPeriod,
		handler:    handler,
		log:        util.ComponentLogger("ws").With().Str("peer", addr).Logger(),
		out:        make(chan []byte, outBufferSize),
		stopped:    make(chan struct{}),
	}
}

// Run processes the link until the peer goes away, ctx is done or Disconnect is called.
func (l *Link) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.conn.SetReadLimit(maxMessageSize)
	if err := l.conn.SetReadDeadline(time.Now().Add(2 * l.pingPeriod)); err != nil {
		l.log.Debug().Err(err).Msg("Failed to set initial read deadline")
		l.Disconnect()
	}
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(2 * l.pingPeriod))
	})

	l.wg.Add(2)
	go l.writeLoop()
	go l.pingLoop(ctx)

	l.readLoop(ctx)
	l.Disconnect()
	l.wg.Wait()
	l.log.Debug().Msg("Link closed")
}

// Send queues v for the peer as JSON.
func (l *Link) Send(v any) error {
	if l.Off() {
		return ErrLinkClosed
	}

	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	select {
	case l.out <- b:
		return nil
	case <-l.stopped:
		return ErrLinkClosed
	}
}

// Disconnect starts shutting the link down. Queued messages are still written.
func (l *Link) Disconnect() {
	l.stopOnce.Do(func() {
		close(l.stopped)
	})
}

func (l *Link) Off() bool {
	select {
	case <-l.stopped:
		return true
	default:
		return false
	}
}

// Done is closed once the link started shutting down.
func (l *Link) Done() <-chan struct{} {
	return l.stopped
}

func (l *Link) readLoop(ctx context.Context) {
	for {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			if !l.Off() && !websocket.IsCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				l.log.Debug().Err(err).Msg("Websocket receive error")
			}
			return
		}

		l.handler(ctx, msg)
	}
}

func (l *Link) writeLoop() {
	defer l.wg.Done()
	// Closing the connection unblocks the read loop.
	defer l.conn.Close()

	for {
		select {
		case b := <-l.out:
			if err := l.write(b); err != nil {
				l.log.Debug().Err(err).Msg("Websocket write error")
				l.Disconnect()
				return
			}
		case <-l.stopped:
			l.drain()
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// drain writes messages queued before the link stopped.
func (l *Link) drain() {
	for {
		select {
		case b := <-l.out:
			if err := l.write(b); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (l *Link) write(b []byte) error {
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return l.conn.WriteMessage(websocket.TextMessage, b)
}

func (l *Link) pingLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				l.log.Debug().Err(err).Msg("Websocket ping error")
				l.Disconnect()
				return
			}
		case <-ctx.Done():
			l.Disconnect()
			return
		case <-l.stopped:
			return
		}
	}
}

package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/echo/v4"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/api/httperrors"
	"github/chapool/wallet-broker/internal/api/ws"
	"github/chapool/wallet-broker/internal/auth"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/notify"
	"github/chapool/wallet-broker/internal/wallet/router"
	"github/chapool/wallet-broker/internal/wallet/session"
)

const (
	pingPeriod       = 30 * time.Second
	notifyBufferSize = 32
)

func GetWSRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/ws", getWSHandler(s))
}

// getWSHandler opens a port session for the lifetime of one websocket connection.
// Popup and background sessions must present the approver token as the "token" query parameter.
func getWSHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		kind := session.KindPage
		if raw := c.QueryParam("kind"); raw != "" {
			k, ok := session.ParseKind(raw)
			if !ok {
				return httperrors.ErrBadRequestSessionKind
			}
			kind = k
		}

		if kind.Privileged() && !auth.RoleFor(s.Config.Echo.ApproverToken, c.QueryParam("token")).IsApprover() {
			return httperrors.ErrUnauthorizedApprover
		}

		sess, err := s.Sessions.Open(ctx, kind, c.Request().Header.Get(echo.HeaderOrigin))
		if err != nil {
			return err
		}
		// The session outlives the request context once the connection is hijacked.
		defer s.Sessions.Close(context.WithoutCancel(ctx), sess.ID)

		conn, err := ws.Upgrade(c.Response(), c.Request())
		if err != nil {
			log.Debug().Err(err).Msg("Websocket upgrade failed")
			return nil
		}

		var link *ws.Link
		link = ws.NewLink(c.RealIP(), conn, pingPeriod, func(ctx context.Context, msg []byte) {
			var env router.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				_ = link.Send(&router.Reply{Error: &router.ErrorBody{
					Code:    errs.CodeInvalidPayload,
					Message: "malformed envelope",
				}})
				return
			}

			// Page requests block until approved, so every envelope is answered on its own goroutine.
			go func() {
				if err := link.Send(s.Messages.Handle(ctx, sess.ID, &env)); err != nil {
					log.Debug().Err(err).Str("message", string(env.Message)).Msg("Dropped reply to closed link")
				}
			}()
		})

		if err := s.Sessions.OnClose(sess.ID, link.Disconnect); err != nil {
			link.Disconnect()
		}

		if kind.Privileged() {
			events := make(chan notify.Event, notifyBufferSize)
			sub := s.Notifier.Subscribe(events)
			defer sub.Unsubscribe()

			go forwardNotifications(link, events, sub.Err())
		}

		log.Debug().Str("session", sess.ID).Str("kind", string(kind)).Msg("Port session connected")
		link.Run(ctx)

		return nil
	}
}

// forwardNotifications pushes events to the link until the subscription ends. Events keep being
// drained after the link went away so the notifier never blocks on this session.
func forwardNotifications(link *ws.Link, events <-chan notify.Event, done <-chan error) {
	for {
		select {
		case ev := <-events:
			if link.Off() {
				continue
			}
			_ = link.Send(&router.Reply{Subscription: router.SubscriptionNotification, Response: ev})
		case <-done:
			return
		}
	}
}

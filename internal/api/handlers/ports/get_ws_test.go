package ports_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/request"
)

const readTimeout = 5 * time.Second

// inbound is a reply or push as seen by a client.
type inbound struct {
	ID           string          `json:"id"`
	Subscription string          `json:"subscription"`
	Response     json.RawMessage `json:"response"`
	Error        *struct {
		Code    errs.Code `json:"code"`
		Message string    `json:"message"`
	} `json:"error"`
}

func withWSServer(t *testing.T, fn func(s *api.Server, dial func(query string) (*websocket.Conn, *http.Response, error))) {
	t.Helper()

	test.WithTestServer(t, func(s *api.Server) {
		srv := httptest.NewServer(s.Echo)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
		fn(s, func(query string) (*websocket.Conn, *http.Response, error) {
			conn, res, err := websocket.DefaultDialer.Dial(url+query, http.Header{"Origin": []string{"https://dapp.example"}})
			if conn != nil {
				t.Cleanup(func() { _ = conn.Close() })
			}
			return conn, res, err
		})
	})
}

func send(t *testing.T, conn *websocket.Conn, id string, message string, body string) {
	t.Helper()

	env := `{"id":"` + id + `","message":"` + message + `"`
	if body != "" {
		env += `,"request":` + body
	}
	env += "}"

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(env)))
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(*inbound) bool) *inbound {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg inbound
		require.NoError(t, json.Unmarshal(raw, &msg))
		if match(&msg) {
			return &msg
		}
	}
}

func replyTo(id string) func(*inbound) bool {
	return func(m *inbound) bool { return m.ID == id }
}

func TestPrivilegedSessionsRequireToken(t *testing.T) {
	withWSServer(t, func(_ *api.Server, dial func(string) (*websocket.Conn, *http.Response, error)) {
		_, res, err := dial("?kind=popup")
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

		_, res, err = dial("?kind=background&token=nope")
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

		_, res, err = dial("?kind=sidebar")
		require.Error(t, err)
		require.NotNil(t, res)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)

		conn, _, err := dial("?kind=popup&token=" + test.TestApproverToken)
		require.NoError(t, err)

		send(t, conn, "1", "pri(signing.requests)", "")
		reply := readUntil(t, conn, replyTo("1"))
		require.Nil(t, reply.Error)
		assert.JSONEq(t, `[]`, string(reply.Response))
	})
}

func TestPageSessionIsNotPrivileged(t *testing.T) {
	withWSServer(t, func(_ *api.Server, dial func(string) (*websocket.Conn, *http.Response, error)) {
		conn, _, err := dial("")
		require.NoError(t, err)

		send(t, conn, "1", "pri(signing.requests)", "")
		reply := readUntil(t, conn, replyTo("1"))
		require.NotNil(t, reply.Error)
		assert.Equal(t, errs.CodeUnauthorized, reply.Error.Code)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		reply = readUntil(t, conn, func(*inbound) bool { return true })
		require.NotNil(t, reply.Error)
		assert.Equal(t, errs.CodeInvalidPayload, reply.Error.Code)
	})
}

func TestPageRequestApprovedByPopup(t *testing.T) {
	withWSServer(t, func(s *api.Server, dial func(string) (*websocket.Conn, *http.Response, error)) {
		ctx := context.Background()
		entry, err := s.Keyring.Import(ctx, "dev", test.TestMnemonic, test.TestPassword)
		require.NoError(t, err)
		_, err = s.Keyring.CreateAccount(ctx, entry.ID, address.FamilyEthereum, "main", keyring.Credential{Password: test.TestPassword})
		require.NoError(t, err)

		popup, _, err := dial("?kind=popup&token=" + test.TestApproverToken)
		require.NoError(t, err)

		// a round trip makes sure the popup is subscribed to notifications
		send(t, popup, "sync", "pri(signing.requests)", "")
		readUntil(t, popup, replyTo("sync"))

		page, _, err := dial("?kind=page")
		require.NoError(t, err)

		send(t, page, "p1", "pub(eth.request)",
			`{"method":"personal_sign","params":["0x68656c6c6f","`+test.DevAccount0.Hex()+`"]}`)

		push := readUntil(t, popup, func(m *inbound) bool { return m.Subscription == "notification" })
		var ev struct {
			Type      string `json:"type"`
			RequestID string `json:"requestId"`
		}
		require.NoError(t, json.Unmarshal(push.Response, &ev))
		assert.Equal(t, "request-created", ev.Type)
		require.NotEmpty(t, ev.RequestID)

		req, err := s.Broker.Get(ctx, ev.RequestID)
		require.NoError(t, err)
		assert.Equal(t, "https://dapp.example", req.Origin.URL)
		assert.Equal(t, request.KindEthSign, req.Kind)

		send(t, popup, "a1", "pri(signing.approve)", `{"id":"`+ev.RequestID+`","password":"`+test.TestPassword+`"}`)
		approved := readUntil(t, popup, replyTo("a1"))
		require.Nil(t, approved.Error)
		assert.Contains(t, string(approved.Response), `"status":"approved"`)

		answer := readUntil(t, page, replyTo("p1"))
		require.Nil(t, answer.Error)

		var sig struct {
			Signature string `json:"signature"`
		}
		require.NoError(t, json.Unmarshal(answer.Response, &sig))
		assert.True(t, strings.HasPrefix(sig.Signature, "0x"))
		assert.Len(t, sig.Signature, 2+65*2)
	})
}

func TestDisconnectRejectsPendingRequests(t *testing.T) {
	withWSServer(t, func(s *api.Server, dial func(string) (*websocket.Conn, *http.Response, error)) {
		ctx := context.Background()

		page, _, err := dial("")
		require.NoError(t, err)

		send(t, page, "p1", "pub(eth.request)",
			`{"method":"eth_sign","params":["`+test.DevAccount0.Hex()+`","0x68656c6c6f"]}`)

		var id string
		require.Eventually(t, func() bool {
			pending, err := s.Broker.Pending(ctx)
			if err != nil || len(pending) != 1 {
				return false
			}
			id = pending[0].ID
			return true
		}, readTimeout, 10*time.Millisecond)

		require.NoError(t, page.Close())

		require.Eventually(t, func() bool {
			req, err := s.Broker.Get(ctx, id)
			return err == nil && req.Status == request.StatusRejected && req.Reason == request.ReasonContextClosed
		}, readTimeout, 10*time.Millisecond)

		assert.Eventually(t, func() bool { return s.Sessions.Count() == 0 }, readTimeout, 10*time.Millisecond)
	})
}

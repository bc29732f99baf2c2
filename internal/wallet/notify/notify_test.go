package notify_test

import (
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/wallet/notify"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.5", notify.FormatAmount("15000000000", 10))
	assert.Equal(t, "0.000001", notify.FormatAmount("1", 6))
	assert.Equal(t, "42", notify.FormatAmount("42", 0))
	assert.Equal(t, "abc", notify.FormatAmount("abc", 18))
}

func TestNotifierDeliversToSubscribers(t *testing.T) {
	n := notify.New()
	ch := make(chan notify.Event, 1)
	sub := n.Subscribe(ch)
	defer sub.Unsubscribe()

	n.Notify(notify.Event{Type: notify.EventTransferConfirmed, Hash: "0x01"})

	select {
	case ev := <-ch:
		assert.Equal(t, notify.EventTransferConfirmed, ev.Type)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		require.Fail(t, "event not delivered")
	}

	// no subscribers is fine
	sub.Unsubscribe()
	n.Notify(notify.Event{Type: notify.EventTransferFailed})
}

func TestEmailSinkMailsTransferOutcomes(t *testing.T) {
	sent := make(chan *email.Email, 2)
	sink := notify.NewEmailSink(notify.EmailConfig{
		From: "broker@example.com",
		To:   []string{"ops@example.com"},
		Host: "localhost",
		Port: 25,
	}, notify.WithSendFunc(func(e *email.Email) error {
		sent <- e
		return nil
	}))

	n := notify.New()
	n.AddSink(sink)

	n.Notify(notify.Event{Type: notify.EventRequestCreated, RequestID: "r1"})
	n.Notify(notify.Event{
		Type:      notify.EventTransferConfirmed,
		Hash:      "0xabc",
		NetworkID: "1",
		Amount:    "1.5",
		Symbol:    "ETH",
		To:        "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	})

	select {
	case e := <-sent:
		assert.Equal(t, "Transfer of 1.5 ETH confirmed", e.Subject)
		assert.Equal(t, []string{"ops@example.com"}, e.To)
		assert.Contains(t, string(e.Text), "0xabc")
		assert.Contains(t, string(e.Text), "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	case <-time.After(time.Second):
		require.Fail(t, "no email sent")
	}

	n.Notify(notify.Event{Type: notify.EventTransferFailed, Hash: "0xdef", NetworkID: "1"})

	select {
	case e := <-sent:
		assert.Equal(t, "Transaction failed", e.Subject)
	case <-time.After(time.Second):
		require.Fail(t, "no email sent")
	}

	assert.Empty(t, sent)
}

package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/util"
)

// EmailConfig configures the SMTP relay transfer notifications are sent through.
type EmailConfig struct {
	From     string
	To       []string
	Host     string
	Port     int
	Username string
	Password string
}

// SendFunc delivers one email.
type SendFunc func(e *email.Email) error

// EmailSink mails transfer outcomes. Request announcements are only pushed to sessions.
type EmailSink struct {
	from string
	to   []string
	send SendFunc
	log  zerolog.Logger
}

type EmailOption func(*EmailSink)

// WithSendFunc replaces SMTP delivery.
func WithSendFunc(fn SendFunc) EmailOption {
	return func(s *EmailSink) { s.send = fn }
}

func NewEmailSink(cfg EmailConfig, opts ...EmailOption) *EmailSink {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	s := &EmailSink{
		from: cfg.From,
		to:   cfg.To,
		send: func(e *email.Email) error {
			return e.Send(addr, auth)
		},
		log: util.ComponentLogger("email"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *EmailSink) Notify(ev Event) {
	if ev.Type != EventTransferConfirmed && ev.Type != EventTransferFailed {
		return
	}

	e := s.compose(ev)
	go func() {
		if err := s.send(e); err != nil {
			s.log.Warn().Err(err).Str("hash", ev.Hash).Msg("Failed to send transfer notification")
		}
	}()
}

func (s *EmailSink) compose(ev Event) *email.Email {
	outcome := "confirmed"
	if ev.Type == EventTransferFailed {
		outcome = "failed"
	}

	what := "Transaction"
	if ev.Amount != "" {
		what = strings.TrimSpace(fmt.Sprintf("Transfer of %s %s", ev.Amount, ev.Symbol))
	}

	var body strings.Builder
	fmt.Fprintf(&body, "%s %s.\n\n", what, outcome)
	if ev.To != "" {
		fmt.Fprintf(&body, "To:      %s\n", ev.To)
	}
	fmt.Fprintf(&body, "Network: %s\n", ev.NetworkID)
	fmt.Fprintf(&body, "Hash:    %s\n", ev.Hash)
	fmt.Fprintf(&body, "At:      %s\n", ev.At.UTC().Format(time.RFC3339))

	e := email.NewEmail()
	e.From = s.from
	e.To = s.to
	e.Subject = fmt.Sprintf("%s %s", what, outcome)
	e.Text = []byte(body.String())

	return e
}

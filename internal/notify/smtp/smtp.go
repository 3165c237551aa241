// Package smtp mails run summaries.
package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

type Notifier struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

func New(cfg Config) (*Notifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" || len(cfg.To) == 0 {
		return nil, errors.New("smtp from and to are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	send := gosmtp.SendMail
	if cfg.Port == 465 {
		send = gosmtp.SendMailTLS
	}
	return &Notifier{cfg: cfg, send: send, now: time.Now}, nil
}

// Send composes a text/plain message and submits it. go-smtp has no context
// support, so cancellation is only checked before dialing.
func (n *Notifier) Send(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.compose(subject, body)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if n.cfg.Username != "" {
		auth = sasl.NewPlainClient("", n.cfg.Username, n.cfg.Password)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

func (n *Notifier) compose(subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(n.now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: n.cfg.From}})
	to := make([]*mail.Address, 0, len(n.cfg.To))
	for _, addr := range n.cfg.To {
		to = append(to, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", to)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

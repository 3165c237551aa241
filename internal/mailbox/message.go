package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var ErrMalformedMessage = errors.New("malformed message")

const maxPartBytes = 20 << 20

// Message is an alert email reduced to what extraction needs.
type Message struct {
	UID       UID
	MessageID string
	Subject   string
	From      string
	Date      time.Time

	HTML string
	Text string
}

// ParseMessage reads an RFC 5322 message and keeps the largest text/html and
// text/plain parts. Transfer encodings and charsets are decoded.
func ParseMessage(uid UID, raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedMessage)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	defer mr.Close()

	m := &Message{UID: uid}
	h := mr.Header
	m.Subject, _ = h.Subject()
	m.MessageID, _ = h.MessageID()
	if d, err := h.Date(); err == nil {
		m.Date = d
	}
	if from, err := h.AddressList("From"); err == nil {
		m.From = joinAddrs(from)
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			if m.HTML == "" && m.Text == "" {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
			break
		}

		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		b, err := io.ReadAll(io.LimitReader(p.Body, maxPartBytes))
		if err != nil && len(b) == 0 {
			continue
		}
		switch strings.ToLower(ct) {
		case "text/html":
			if len(b) > len(m.HTML) {
				m.HTML = string(b)
			}
		case "text/plain", "":
			if len(b) > len(m.Text) {
				m.Text = string(b)
			}
		}
	}

	if strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "" {
		return nil, fmt.Errorf("%w: no text or html part", ErrMalformedMessage)
	}
	return m, nil
}

func joinAddrs(addrs []*mail.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		v := strings.TrimSpace(a.Address)
		if v == "" {
			v = strings.TrimSpace(a.Name)
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

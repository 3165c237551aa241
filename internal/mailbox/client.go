// Package mailbox owns the IMAP session the pipeline reads alert emails from.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap/v2"

	"jobmail-engine/internal/retry"
)

type UID = imap.UID

var ErrNotConnected = errors.New("imap session not connected")

type Config struct {
	Addr      string
	TLS       bool
	TLSConfig *tls.Config
	Username  string
	Password  string

	// Folder is selected after every login.
	Folder string

	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client is not safe for concurrent use; the orchestrator owns it for one batch
// at a time. Counters may be read from any goroutine.
type Client struct {
	cfg    Config
	dial   dialFunc
	logger *slog.Logger

	conn imapConn

	connFailures atomic.Int64
	reconnects   atomic.Int64
}

func New(cfg Config, logger *slog.Logger) *Client {
	return newClient(cfg, dialIMAP(cfg.Addr, cfg.TLS, cfg.TLSConfig, cfg.Timeout), logger)
}

func newClient(cfg Config, dial dialFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Client{
		cfg:    cfg,
		dial:   dial,
		logger: logger.With("component", "mailbox"),
	}
}

func (c *Client) policy() retry.Policy {
	return retry.Policy{Attempts: c.cfg.Retries, Delay: c.cfg.RetryDelay}
}

// Connect logs in and selects the jobs folder, retrying with a fixed delay.
// Any previous session is torn down before each attempt.
func (c *Client) Connect(ctx context.Context) error {
	err := retry.Do(ctx, c.policy(), func(attempt int) error {
		c.teardown()
		c.logger.Info("imap connect attempt",
			"attempt", attempt, "max", c.cfg.Retries, "addr", c.cfg.Addr, "folder", c.cfg.Folder)

		conn, err := c.dial(ctx)
		if err != nil {
			c.connFailures.Add(1)
			c.logger.Warn("imap dial failed", "attempt", attempt, "err", err)
			return err
		}
		if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
			c.connFailures.Add(1)
			_ = conn.Close()
			c.logger.Warn("imap login failed", "attempt", attempt, "err", err)
			return err
		}
		if err := conn.Select(c.cfg.Folder); err != nil {
			c.connFailures.Add(1)
			_ = conn.Logout()
			_ = conn.Close()
			c.logger.Warn("imap select failed", "attempt", attempt, "folder", c.cfg.Folder, "err", err)
			return err
		}
		c.conn = conn
		return nil
	})
	if err != nil {
		c.logger.Error("imap connect exhausted retries", "retries", c.cfg.Retries, "err", err)
		return fmt.Errorf("imap connect after %d attempts: %w", c.cfg.Retries, err)
	}
	c.logger.Info("imap connected", "addr", c.cfg.Addr, "folder", c.cfg.Folder)
	return nil
}

// EnsureConnected probes the session with NOOP and reconnects when the probe
// fails or there is no session yet.
func (c *Client) EnsureConnected(ctx context.Context) bool {
	if c.conn != nil {
		err := c.conn.Noop()
		if err == nil {
			return true
		}
		c.logger.Warn("imap noop failed, reconnecting", "err", err)
		c.reconnects.Add(1)
	}
	return c.Connect(ctx) == nil
}

// Search lists every message UID in the jobs folder, ascending.
func (c *Client) Search(ctx context.Context) ([]UID, error) {
	if !c.EnsureConnected(ctx) {
		return nil, ErrNotConnected
	}
	uids, err := c.conn.SearchAll()
	if err != nil {
		return nil, err
	}
	return uids, nil
}

// Fetch returns the parsed message or nil when every attempt failed or the
// server response was malformed.
func (c *Client) Fetch(ctx context.Context, uid UID) *Message {
	var raw []byte
	err := retry.Do(ctx, c.policy(), func(attempt int) error {
		if !c.EnsureConnected(ctx) {
			return ErrNotConnected
		}
		b, err := c.conn.FetchRaw(uid)
		if err != nil {
			c.logger.Warn("imap fetch failed", "uid", uid, "attempt", attempt, "err", err)
			if errors.Is(err, ErrMalformedMessage) {
				return retry.Permanent(err)
			}
			return err
		}
		raw = b
		return nil
	})
	if err != nil {
		c.logger.Error("imap fetch gave up", "uid", uid, "err", err)
		return nil
	}

	msg, err := ParseMessage(uid, raw)
	if err != nil {
		c.logger.Error("message not parseable", "uid", uid, "err", err)
		return nil
	}
	return msg
}

// Move copies uid into folder and expunges the original. Best-effort: a
// failure is logged and the message stays where it was.
func (c *Client) Move(ctx context.Context, uid UID, folder string) bool {
	if !c.EnsureConnected(ctx) {
		c.logger.Error("imap move skipped, no session", "uid", uid, "folder", folder)
		return false
	}
	if err := c.conn.Move(uid, folder); err != nil {
		c.logger.Error("imap move failed", "uid", uid, "folder", folder, "err", err)
		return false
	}
	c.logger.Debug("imap moved", "uid", uid, "folder", folder)
	return true
}

// Close logs out and drops the session. LOGOUT is bounded by the session
// timeout; errors are logged and swallowed.
func (c *Client) Close() {
	c.teardown()
}

func (c *Client) teardown() {
	if c.conn == nil {
		return
	}
	conn := c.conn
	done := make(chan error, 1)
	go func() { done <- conn.Logout() }()

	var expired <-chan time.Time
	if c.cfg.Timeout > 0 {
		t := time.NewTimer(c.cfg.Timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("imap logout", "err", err)
		}
	case <-expired:
		c.logger.Warn("imap logout timed out", "timeout", c.cfg.Timeout)
	}
	if err := conn.Close(); err != nil {
		c.logger.Debug("imap close", "err", err)
	}
	c.conn = nil
}

func (c *Client) Counters() (connectionFailures, reconnects int) {
	return int(c.connFailures.Load()), int(c.reconnects.Load())
}

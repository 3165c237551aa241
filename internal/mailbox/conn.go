package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// imapConn is the slice of IMAP the client needs. The go-imap adapter below
// is the production implementation; tests use a fake.
type imapConn interface {
	Login(username, password string) error
	Select(folder string) error
	Noop() error
	SearchAll() ([]imap.UID, error)
	FetchRaw(uid imap.UID) ([]byte, error)
	// Move copies uid to folder, flags the original \Deleted and expunges.
	Move(uid imap.UID, folder string) error
	Logout() error
	Close() error
}

type dialFunc func(ctx context.Context) (imapConn, error)

func TLSConfigFor(host string) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: host,
	}
}

// dialIMAP connects with a dial timeout. Every later command gets the same
// timeout as a connection deadline.
func dialIMAP(addr string, useTLS bool, tlsCfg *tls.Config, timeout time.Duration) dialFunc {
	return func(ctx context.Context) (imapConn, error) {
		if addr == "" {
			return nil, fmt.Errorf("imap addr is required")
		}
		nd := &net.Dialer{Timeout: timeout}

		var (
			conn net.Conn
			err  error
		)
		if useTLS {
			if tlsCfg == nil {
				host, _, _ := net.SplitHostPort(addr)
				tlsCfg = TLSConfigFor(host)
			}
			td := &tls.Dialer{NetDialer: nd, Config: tlsCfg}
			conn, err = td.DialContext(ctx, "tcp", addr)
		} else {
			conn, err = nd.DialContext(ctx, "tcp", addr)
		}
		if err != nil {
			return nil, fmt.Errorf("imap dial %s: %w", addr, err)
		}

		return &clientConn{
			c:       imapclient.New(conn, nil),
			netConn: conn,
			timeout: timeout,
		}, nil
	}
}

type clientConn struct {
	c       *imapclient.Client
	netConn net.Conn
	timeout time.Duration
}

func (cc *clientConn) withDeadline(fn func() error) error {
	if cc.timeout > 0 {
		_ = cc.netConn.SetDeadline(time.Now().Add(cc.timeout))
		defer func() { _ = cc.netConn.SetDeadline(time.Time{}) }()
	}
	return fn()
}

func (cc *clientConn) Login(username, password string) error {
	return cc.withDeadline(func() error {
		if err := cc.c.Login(username, password).Wait(); err != nil {
			return fmt.Errorf("imap login: %w", err)
		}
		return nil
	})
}

func (cc *clientConn) Select(folder string) error {
	return cc.withDeadline(func() error {
		if _, err := cc.c.Select(folder, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
			return fmt.Errorf("imap select %s: %w", folder, err)
		}
		return nil
	})
}

func (cc *clientConn) Noop() error {
	return cc.withDeadline(func() error {
		return cc.c.Noop().Wait()
	})
}

func (cc *clientConn) SearchAll() ([]imap.UID, error) {
	var uids []imap.UID
	err := cc.withDeadline(func() error {
		data, err := cc.c.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("imap uid search: %w", err)
		}
		uids = data.AllUIDs()
		return nil
	})
	return uids, err
}

func (cc *clientConn) FetchRaw(uid imap.UID) ([]byte, error) {
	bodyAll := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierNone,
		Peek:      true,
	}
	opts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodyAll},
	}

	var raw []byte
	err := cc.withDeadline(func() error {
		msgs, err := cc.c.Fetch(imap.UIDSetNum(uid), opts).Collect()
		if err != nil {
			return fmt.Errorf("imap fetch %d: %w", uid, err)
		}
		if len(msgs) == 0 {
			return fmt.Errorf("%w: uid %d not found", ErrMalformedMessage, uid)
		}
		b := msgs[0].FindBodySection(bodyAll)
		if len(b) == 0 {
			return fmt.Errorf("%w: uid %d has no body section", ErrMalformedMessage, uid)
		}
		raw = append([]byte(nil), b...)
		return nil
	})
	return raw, err
}

func (cc *clientConn) Move(uid imap.UID, folder string) error {
	set := imap.UIDSetNum(uid)
	return cc.withDeadline(func() error {
		if _, err := cc.c.Copy(set, folder).Wait(); err != nil {
			return fmt.Errorf("imap copy %d to %s: %w", uid, folder, err)
		}
		storeFlags := &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}
		if err := cc.c.Store(set, storeFlags, nil).Close(); err != nil {
			return fmt.Errorf("imap store deleted %d: %w", uid, err)
		}
		if err := cc.c.Expunge().Close(); err != nil {
			return fmt.Errorf("imap expunge: %w", err)
		}
		return nil
	})
}

func (cc *clientConn) Logout() error {
	return cc.withDeadline(func() error {
		return cc.c.Logout().Wait()
	})
}

func (cc *clientConn) Close() error {
	return cc.c.Close()
}

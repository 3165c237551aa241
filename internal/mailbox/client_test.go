package mailbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRaw = "From: Alerts <alerts@board.example.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: New jobs for you\r\n" +
	"Message-Id: <abc@board.example.com>\r\n" +
	"Date: Mon, 02 Jun 2025 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<html><body><a href=\"https://board.example.com/jobs/view/42\">Job: Backend Engineer</a></body></html>\r\n"

type fakeConn struct {
	loginErr  error
	selectErr error
	noopErr   error
	fetchErrs []error
	moveErr   error

	uids      []imap.UID
	raw       map[imap.UID][]byte
	selected  string
	moved     map[imap.UID]string
	fetches   int
	loggedOut bool
	closed    bool

	// logoutGate, when set, blocks Logout until it is closed.
	logoutGate chan struct{}
}

func (f *fakeConn) Login(string, string) error { return f.loginErr }
func (f *fakeConn) Select(folder string) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	f.selected = folder
	return nil
}
func (f *fakeConn) Noop() error                    { return f.noopErr }
func (f *fakeConn) SearchAll() ([]imap.UID, error) { return f.uids, nil }
func (f *fakeConn) FetchRaw(uid imap.UID) ([]byte, error) {
	f.fetches++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.raw[uid], nil
}
func (f *fakeConn) Move(uid imap.UID, folder string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	if f.moved == nil {
		f.moved = map[imap.UID]string{}
	}
	f.moved[uid] = folder
	return nil
}
func (f *fakeConn) Logout() error {
	if f.logoutGate != nil {
		<-f.logoutGate
	}
	f.loggedOut = true
	return nil
}
func (f *fakeConn) Close() error  { f.closed = true; return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialSequence hands out conns in order; a nil entry fails the dial.
func dialSequence(conns ...*fakeConn) (dialFunc, *int) {
	n := 0
	return func(context.Context) (imapConn, error) {
		i := n
		n++
		if i >= len(conns) {
			i = len(conns) - 1
		}
		if conns[i] == nil {
			return nil, errors.New("connection refused")
		}
		return conns[i], nil
	}, &n
}

func testConfig() Config {
	return Config{Addr: "imap.example.com:993", Username: "u", Password: "p", Folder: "jobs", Retries: 3}
}

func TestConnectRetriesThenSelectsFolder(t *testing.T) {
	good := &fakeConn{}
	dial, calls := dialSequence(nil, nil, good)
	c := newClient(testConfig(), dial, testLogger())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, "jobs", good.selected)

	failures, _ := c.Counters()
	assert.Equal(t, 2, failures)
}

func TestConnectExhausted(t *testing.T) {
	dial, calls := dialSequence(nil)
	c := newClient(testConfig(), dial, testLogger())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, *calls)
	assert.False(t, c.EnsureConnected(context.Background()))
}

func TestConnectTearsDownPreviousSession(t *testing.T) {
	first := &fakeConn{}
	second := &fakeConn{}
	dial, _ := dialSequence(first, second)
	c := newClient(testConfig(), dial, testLogger())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, first.loggedOut)
	assert.True(t, first.closed)
	assert.False(t, second.closed)
}

func TestEnsureConnectedReconnectsOnNoopFailure(t *testing.T) {
	stale := &fakeConn{}
	fresh := &fakeConn{}
	dial, calls := dialSequence(stale, fresh)
	c := newClient(testConfig(), dial, testLogger())
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, c.EnsureConnected(context.Background()))
	assert.Equal(t, 1, *calls, "healthy session is reused")

	stale.noopErr = errors.New("connection reset")
	assert.True(t, c.EnsureConnected(context.Background()))
	assert.Equal(t, 2, *calls)

	_, reconnects := c.Counters()
	assert.Equal(t, 1, reconnects)
}

func TestFetchRetriesAndParses(t *testing.T) {
	conn := &fakeConn{
		raw:       map[imap.UID][]byte{7: []byte(sampleRaw)},
		fetchErrs: []error{errors.New("timeout"), nil},
	}
	dial, _ := dialSequence(conn)
	c := newClient(testConfig(), dial, testLogger())

	msg := c.Fetch(context.Background(), 7)
	require.NotNil(t, msg)
	assert.Equal(t, 2, conn.fetches)
	assert.Equal(t, "New jobs for you", msg.Subject)
	assert.Contains(t, msg.HTML, "jobs/view/42")
}

func TestFetchGivesUpOnMalformed(t *testing.T) {
	conn := &fakeConn{fetchErrs: []error{ErrMalformedMessage}}
	dial, _ := dialSequence(conn)
	c := newClient(testConfig(), dial, testLogger())

	assert.Nil(t, c.Fetch(context.Background(), 9))
	assert.Equal(t, 1, conn.fetches)
}

func TestFetchReturnsNilAfterRetries(t *testing.T) {
	boom := errors.New("boom")
	conn := &fakeConn{fetchErrs: []error{boom, boom, boom}}
	dial, _ := dialSequence(conn)
	c := newClient(testConfig(), dial, testLogger())

	assert.Nil(t, c.Fetch(context.Background(), 1))
	assert.Equal(t, 3, conn.fetches)
}

func TestMoveIsBestEffort(t *testing.T) {
	conn := &fakeConn{}
	dial, _ := dialSequence(conn)
	c := newClient(testConfig(), dial, testLogger())

	assert.True(t, c.Move(context.Background(), 3, "parsed"))
	assert.Equal(t, "parsed", conn.moved[3])

	conn.moveErr = errors.New("NO [TRYCREATE]")
	assert.False(t, c.Move(context.Background(), 4, "error"))
}

func TestSearchAndClose(t *testing.T) {
	conn := &fakeConn{uids: []imap.UID{1, 2, 5}}
	dial, _ := dialSequence(conn)
	c := newClient(testConfig(), dial, testLogger())

	uids, err := c.Search(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []UID{1, 2, 5}, uids)

	c.Close()
	assert.True(t, conn.loggedOut)
	assert.True(t, conn.closed)
	c.Close() // no session, no panic
}

func TestCloseDoesNotHangOnStuckLogout(t *testing.T) {
	gate := make(chan struct{})
	t.Cleanup(func() { close(gate) })
	conn := &fakeConn{logoutGate: gate}
	dial, _ := dialSequence(conn)
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	c := newClient(cfg, dial, testLogger())
	require.NoError(t, c.Connect(context.Background()))

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on logout")
	}
	assert.True(t, conn.closed)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"jobmail-engine/internal/config"
	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/events"
	"jobmail-engine/internal/health"
	"jobmail-engine/internal/mailbox"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var folders = config.Folders{Inbox: "INBOX", Jobs: "jobs", Parsed: "parsed", Error: "error"}

type fakeMailbox struct {
	connectErr error
	searchErr  error
	folder     []mailbox.UID
	messages   map[mailbox.UID]*mailbox.Message
	moveFails  map[mailbox.UID]bool

	moved    map[mailbox.UID]string
	connects int
	closes   int
}

func newFakeMailbox(msgs ...*mailbox.Message) *fakeMailbox {
	m := &fakeMailbox{
		messages:  map[mailbox.UID]*mailbox.Message{},
		moveFails: map[mailbox.UID]bool{},
		moved:     map[mailbox.UID]string{},
	}
	for _, msg := range msgs {
		m.folder = append(m.folder, msg.UID)
		m.messages[msg.UID] = msg
	}
	return m
}

func (m *fakeMailbox) Connect(context.Context) error {
	m.connects++
	return m.connectErr
}

func (m *fakeMailbox) Search(context.Context) ([]mailbox.UID, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return append([]mailbox.UID(nil), m.folder...), nil
}

func (m *fakeMailbox) Fetch(_ context.Context, uid mailbox.UID) *mailbox.Message {
	return m.messages[uid]
}

func (m *fakeMailbox) Move(_ context.Context, uid mailbox.UID, folder string) bool {
	if m.moveFails[uid] {
		return false
	}
	m.moved[uid] = folder
	kept := m.folder[:0]
	for _, u := range m.folder {
		if u != uid {
			kept = append(kept, u)
		}
	}
	m.folder = kept
	return true
}

func (m *fakeMailbox) Close()               { m.closes++ }
func (m *fakeMailbox) Counters() (int, int) { return 0, 0 }

// fakeExtractor yields one posting per "job:<slug>" token in the html.
type fakeExtractor struct {
	seen []string
}

func (f *fakeExtractor) Extract(_ context.Context, html string) []domain.RawPosting {
	f.seen = append(f.seen, html)
	var out []domain.RawPosting
	for _, tok := range strings.Fields(html) {
		slug, ok := strings.CutPrefix(tok, "job:")
		if !ok {
			continue
		}
		out = append(out, domain.RawPosting{
			Title:    "Job " + slug,
			URL:      "https://board.example.com/jobs/" + slug,
			Location: domain.LocationNotSpecified,
		})
	}
	return out
}

type fakeEnricher struct {
	degrade map[string]bool
}

func (f fakeEnricher) Enrich(_ context.Context, raw domain.RawPosting) domain.EnrichedPosting {
	if f.degrade[raw.URL] {
		return domain.Degraded(raw)
	}
	return domain.EnrichedPosting{RawPosting: raw, Description: "desc", WorkMode: domain.WorkModeRemote, Enriched: true, Source: "http"}
}

type fakeUpserter struct {
	fail  map[string]bool
	saved []string
}

func (f *fakeUpserter) Upsert(_ context.Context, p domain.EnrichedPosting) bool {
	if f.fail[p.URL] {
		return false
	}
	f.saved = append(f.saved, p.URL)
	return true
}

type fakeHealth struct {
	rec     health.Recommendation
	calls   int
	resets  int
	actions []string
	// onCheck is appended to actions by every CheckHealth call.
	onCheck string
}

func (f *fakeHealth) CheckHealth(context.Context, health.Counters) health.Recommendation {
	f.calls++
	if f.onCheck != "" {
		f.actions = append(f.actions, f.onCheck)
	}
	return f.rec
}

func (f *fakeHealth) Actions() []string { return f.actions }

func (f *fakeHealth) ResetActions() {
	f.resets++
	f.actions = nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Send(ctx context.Context, subject, body string) error {
	args := m.Called(ctx, subject, body)
	return args.Error(0)
}

type recordingPublisher struct {
	types []string
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.types = append(r.types, e.Type)
	return nil
}

func msg(uid mailbox.UID, html string) *mailbox.Message {
	return &mailbox.Message{UID: uid, Subject: fmt.Sprintf("alert %d", uid), HTML: html}
}

type harness struct {
	mb       *fakeMailbox
	ext      *fakeExtractor
	enr      fakeEnricher
	ups      *fakeUpserter
	hl       *fakeHealth
	notifier *mockNotifier
	pub      *recordingPublisher
	orch     *Orchestrator
	recorder *StateRecorder
}

func newHarness(t *testing.T, batchSize int, msgs ...*mailbox.Message) *harness {
	t.Helper()
	h := &harness{
		mb:       newFakeMailbox(msgs...),
		ext:      &fakeExtractor{},
		enr:      fakeEnricher{degrade: map[string]bool{}},
		ups:      &fakeUpserter{fail: map[string]bool{}},
		hl:       &fakeHealth{},
		notifier: &mockNotifier{},
		pub:      &recordingPublisher{},
		recorder: NewStateRecorder(),
	}
	h.orch = New(Config{BatchSize: batchSize, Folders: folders}, Deps{
		Mailbox:   h.mb,
		Extractor: h.ext,
		Enricher:  h.enr,
		Upserter:  h.ups,
		Health:    h.hl,
		Notifier:  h.notifier,
		Events:    h.pub,
	}, quietLogger())
	h.orch.recorder = h.recorder
	return h
}

func TestRun_PartialSaveFailureRoutesToError(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a job:b job:c"))
	h.ups.fail["https://board.example.com/jobs/b"] = true
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "error", h.mb.moved[1])
	assert.Equal(t, 1, stats.EmailsProcessed)
	assert.Equal(t, 1, stats.EmailsFailed)
	assert.Zero(t, stats.EmailsSucceeded)
	assert.Equal(t, 3, stats.PostingsExtracted)
	assert.Equal(t, 2, stats.PostingsSaved)
	h.notifier.AssertExpectations(t)
}

func TestRun_EmptyFolderSendsNoSummary(t *testing.T) {
	h := newHarness(t, 10)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"idle", "connecting", "searching_folder", "done"}, h.recorder.Path())
	assert.Zero(t, stats.Batches)
	h.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, h.mb.closes)
}

func TestRun_ConnectFailureIsFatal(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.mb.connectErr = errors.New("auth failed")

	_, err := h.orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed")
	assert.Equal(t, []string{"idle", "connecting", "done"}, h.recorder.Path())
	h.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_SearchFailureIsFatal(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.mb.searchErr = errors.New("folder gone")

	_, err := h.orch.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"idle", "connecting", "searching_folder", "done"}, h.recorder.Path())
}

func TestRun_TwoBatchesStatePath(t *testing.T) {
	h := newHarness(t, 1, msg(1, "job:a"), msg(2, "job:b"))
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	expected := []string{
		"idle",
		"connecting",
		"searching_folder",
		"processing_batch",
		"sending_summary",
		"checking_health",
		"connecting",
		"searching_folder",
		"processing_batch",
		"sending_summary",
		"checking_health",
		"done",
	}
	assert.Equal(t, expected, h.recorder.Path())
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 2, stats.EmailsSucceeded)
	assert.Equal(t, 2, h.mb.connects)
	assert.Equal(t, 2, h.hl.calls)
	assert.Equal(t, 2, h.mb.closes, "session torn down after every batch")
	assert.Equal(t, map[mailbox.UID]string{1: "parsed", 2: "parsed"}, h.mb.moved)
	h.notifier.AssertExpectations(t)
}

func TestRun_BatchSizeNeverBelowOne(t *testing.T) {
	h := newHarness(t, 4,
		msg(1, "job:a"), msg(2, "job:b"), msg(3, "job:c"), msg(4, "job:d"),
		msg(5, "job:e"), msg(6, "job:f"), msg(7, "job:g"), msg(8, "job:h"),
	)
	h.hl.rec = health.Recommendation{ReduceBatch: true}
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)

	// batches of 4, 2, 1, 1
	assert.Equal(t, 1, stats.BatchSize)
	assert.Equal(t, 4, stats.Batches)
	assert.Equal(t, 8, stats.EmailsSucceeded)
}

func TestRun_RunGCRecommendation(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.hl.rec = health.Recommendation{RunGC: true}
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gcCalls := 0
	h.orch.gc = func() { gcCalls++ }

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gcCalls)
}

func TestRun_ZeroPostingsCountsAsSuccess(t *testing.T) {
	h := newHarness(t, 10, msg(1, "<p>newsletter, no jobs</p>"))
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "parsed", h.mb.moved[1])
	assert.Equal(t, 1, stats.EmailsSucceeded)
	assert.Zero(t, stats.PostingsExtracted)
}

func TestRun_FetchFailureRoutesToError(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.mb.messages[1] = nil
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "error", h.mb.moved[1])
	assert.Equal(t, 1, stats.EmailsFailed)
}

func TestRun_StuckMessageIsNotRetriedForever(t *testing.T) {
	h := newHarness(t, 1, msg(1, "job:a"), msg(2, "job:b"))
	h.mb.moveFails[1] = true
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EmailsProcessed)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, "parsed", h.mb.moved[2])
}

func TestRun_TextOnlyMessageIsLinkified(t *testing.T) {
	h := newHarness(t, 10, &mailbox.Message{UID: 1, Text: "New role https://board.example.com/jobs/1"})
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.ext.seen, 1)
	assert.Contains(t, h.ext.seen[0], `<a href="https://board.example.com/jobs/1">`)
}

func TestRun_SummaryListsCompleteAndIncomplete(t *testing.T) {
	h := newHarness(t, 1, msg(1, "job:a"), msg(2, "job:b"))
	h.enr.degrade["https://board.example.com/jobs/b"] = true
	h.hl.onCheck = "09:00:00 memory 600.0 MB over 500 MB: forcing garbage collection"

	var bodies []string
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { bodies = append(bodies, args.String(2)) }).
		Return(nil)

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, bodies, 2)

	assert.Contains(t, bodies[0], "Complete postings (1):\n  - Job a")
	assert.Contains(t, bodies[0], "Health actions (0):\n  none")
	assert.Contains(t, bodies[1], "Incomplete postings (1):\n  - Job b")
	assert.Contains(t, bodies[1], "forcing garbage collection")
	assert.Empty(t, stats.Complete, "lists reset after the summary")
	assert.Empty(t, stats.Incomplete)
}

func TestRun_HealthActionsDoNotCarryOverBetweenRuns(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.hl.onCheck = "09:00:00 cpu 95.0% over 80%: reducing batch size"

	var bodies []string
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { bodies = append(bodies, args.String(2)) }).
		Return(nil)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.hl.actions, 1)

	h.mb.folder = append(h.mb.folder, 2)
	h.mb.messages[2] = msg(2, "job:b")
	_, err = h.orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, h.hl.resets)
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[1], "Health actions (0):\n  none")
}

func TestRun_NotifierFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"))
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	stats, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmailsSucceeded)
}

func TestRun_PublishesEvents(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a job:b"))
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := h.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		events.TypePostingSaved,
		events.TypePostingSaved,
		events.TypeBatchCompleted,
		events.TypeRunFinished,
	}, h.pub.types)
}

func TestRun_CanceledContextStops(t *testing.T) {
	h := newHarness(t, 10, msg(1, "job:a"), msg(2, "job:b"))
	h.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EmailsProcessed)
	assert.Empty(t, h.mb.moved)
}

func TestSummary(t *testing.T) {
	subject, body := Summary(RunStats{RunID: "0123456789abcdef", Batches: 2, EmailsProcessed: 3}, nil)
	assert.Equal(t, "Job mail run 01234567: batch 2", subject)
	assert.Contains(t, body, "Emails processed: 3")
	assert.Contains(t, body, "Health actions (0):\n  none")
}

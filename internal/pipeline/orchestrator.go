// Package pipeline runs the batch loop: connect, search the jobs folder,
// process a batch of alert emails, report, check health, repeat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmail-engine/internal/config"
	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/events"
	"jobmail-engine/internal/extract"
	"jobmail-engine/internal/health"
	"jobmail-engine/internal/mailbox"
	"jobmail-engine/internal/notify"
	"jobmail-engine/internal/retry"
)

type Mailbox interface {
	Connect(ctx context.Context) error
	Search(ctx context.Context) ([]mailbox.UID, error)
	Fetch(ctx context.Context, uid mailbox.UID) *mailbox.Message
	Move(ctx context.Context, uid mailbox.UID, folder string) bool
	Close()
	Counters() (connectionFailures, reconnects int)
}

type Extractor interface {
	Extract(ctx context.Context, html string) []domain.RawPosting
}

type Enricher interface {
	Enrich(ctx context.Context, raw domain.RawPosting) domain.EnrichedPosting
}

type Upserter interface {
	Upsert(ctx context.Context, p domain.EnrichedPosting) bool
}

type HealthChecker interface {
	CheckHealth(ctx context.Context, c health.Counters) health.Recommendation
	Actions() []string
	ResetActions()
}

type Deps struct {
	Mailbox   Mailbox
	Extractor Extractor
	Enricher  Enricher
	Upserter  Upserter
	Health    HealthChecker
	Notifier  notify.Notifier
	Events    events.Publisher
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	Folders    config.Folders
	// SummaryTimeout bounds the notifier call; it runs even after cancellation.
	SummaryTimeout time.Duration
}

type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	state     State
	recorder  *StateRecorder
	attempted map[mailbox.UID]bool
	batchSize int
	gc        func()

	mu    sync.Mutex
	stats RunStats
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 30 * time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{Logger: logger}
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "pipeline"),
		state:  &IdleState{},
		gc:     freeMemory,
	}
}

func freeMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Snapshot returns a copy of the current run counters.
func (o *Orchestrator) Snapshot() RunStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats.clone()
}

func (o *Orchestrator) update(fn func(s *RunStats)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.stats)
}

// transitionTo performs a state transition and logs it
func (o *Orchestrator) transitionTo(newState State) {
	oldStateName := o.state.Name()
	o.state = newState

	if o.recorder != nil {
		o.recorder.Record(newState)
	}
	o.update(func(s *RunStats) { s.State = newState.Name() })

	o.logger.Info("state transition",
		"from", oldStateName,
		"to", newState.Name(),
		"run_id", o.Snapshot().RunID,
	)
}

// Run processes the jobs folder until it is empty of unattempted messages.
// Only a failed connection (or search) aborts the run with an error.
func (o *Orchestrator) Run(ctx context.Context) (RunStats, error) {
	o.state = &IdleState{}
	o.attempted = map[mailbox.UID]bool{}
	o.batchSize = o.cfg.BatchSize
	o.mu.Lock()
	o.stats = RunStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		State:     o.state.Name(),
		BatchSize: o.batchSize,
	}
	o.mu.Unlock()
	if o.recorder != nil {
		o.recorder.Record(o.state)
	}
	if o.deps.Health != nil {
		o.deps.Health.ResetActions()
	}

	for {
		switch s := o.state.(type) {
		case *IdleState:
			o.transitionTo(s.ToConnecting())
		case *ConnectingState:
			o.runConnecting(ctx, s)
		case *SearchingFolderState:
			o.runSearching(ctx, s)
		case *ProcessingBatchState:
			o.runProcessing(ctx, s)
		case *SendingSummaryState:
			o.runSummary(ctx, s)
		case *CheckingHealthState:
			o.runHealth(ctx, s)
		case *DoneState:
			return o.finish(ctx, s)
		default:
			o.transitionTo(&DoneState{err: fmt.Errorf("unknown state %T", s)})
		}
	}
}

func (o *Orchestrator) runConnecting(ctx context.Context, s *ConnectingState) {
	if err := o.deps.Mailbox.Connect(ctx); err != nil {
		o.transitionTo(s.ToDone(fmt.Errorf("connect: %w", err)))
		return
	}
	o.transitionTo(s.ToSearchingFolder())
}

func (o *Orchestrator) runSearching(ctx context.Context, s *SearchingFolderState) {
	uids, err := o.deps.Mailbox.Search(ctx)
	if err != nil {
		o.deps.Mailbox.Close()
		o.transitionTo(s.ToDone(fmt.Errorf("search: %w", err)))
		return
	}

	pending := make([]mailbox.UID, 0, len(uids))
	for _, uid := range uids {
		if !o.attempted[uid] {
			pending = append(pending, uid)
		}
	}
	if len(pending) == 0 {
		o.logger.Info("jobs folder has nothing left to process", "found", len(uids))
		o.deps.Mailbox.Close()
		o.transitionTo(s.ToDone(nil))
		return
	}

	n := min(o.batchSize, len(pending))
	o.logger.Info("batch selected", "size", n, "pending", len(pending), "batch_size", o.batchSize)
	o.transitionTo(s.ToProcessingBatch(pending[:n], len(pending)-n))
}

func (o *Orchestrator) runProcessing(ctx context.Context, s *ProcessingBatchState) {
	o.update(func(st *RunStats) { st.Batches++ })
	for i, uid := range s.batch {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("run canceled mid-batch", "skipped", len(s.batch)-i, "err", err)
			break
		}
		o.processMessage(ctx, uid)
	}
	o.transitionTo(s.ToSendingSummary())
}

func (o *Orchestrator) processMessage(ctx context.Context, uid mailbox.UID) {
	o.attempted[uid] = true
	o.update(func(st *RunStats) { st.EmailsProcessed++ })
	log := o.logger.With("uid", uid)

	msg := o.deps.Mailbox.Fetch(ctx, uid)
	if msg == nil {
		log.Error("message fetch failed")
		o.route(ctx, uid, false)
		return
	}
	log = log.With("subject", msg.Subject)

	html := msg.HTML
	if html == "" {
		html = extract.LinkifyText(msg.Text)
	}
	postings := o.deps.Extractor.Extract(ctx, html)
	o.update(func(st *RunStats) { st.PostingsExtracted += len(postings) })
	if len(postings) == 0 {
		log.Info("no postings found in message")
		o.route(ctx, uid, true)
		return
	}

	allSaved := true
	for _, raw := range postings {
		ep := o.deps.Enricher.Enrich(ctx, raw)
		o.update(func(st *RunStats) {
			if ep.Enriched {
				st.Complete = append(st.Complete, ep.Title)
			} else {
				st.Incomplete = append(st.Incomplete, ep.Title)
			}
		})

		if !o.deps.Upserter.Upsert(ctx, ep) {
			allSaved = false
			log.Warn("posting not saved", "url", ep.URL, "title", ep.Title)
			continue
		}
		o.update(func(st *RunStats) { st.PostingsSaved++ })
		o.publish(ctx, events.TypePostingSaved, ep.URL, map[string]any{
			"url":       ep.URL,
			"title":     ep.Title,
			"employer":  ep.Employer,
			"location":  ep.Location,
			"work_mode": ep.WorkMode,
			"enriched":  ep.Enriched,
			"source":    ep.Source,
		})
	}
	log.Info("message processed", "postings", len(postings), "all_saved", allSaved)
	o.route(ctx, uid, allSaved)
}

// route moves the message to the parsed or error folder and counts it.
func (o *Orchestrator) route(ctx context.Context, uid mailbox.UID, ok bool) {
	folder := o.cfg.Folders.Parsed
	if ok {
		o.update(func(st *RunStats) { st.EmailsSucceeded++ })
	} else {
		folder = o.cfg.Folders.Error
		o.update(func(st *RunStats) { st.EmailsFailed++ })
	}
	if !o.deps.Mailbox.Move(ctx, uid, folder) {
		o.logger.Warn("message left in jobs folder", "uid", uid, "wanted", folder)
	}
}

func (o *Orchestrator) runSummary(ctx context.Context, s *SendingSummaryState) {
	snap := o.Snapshot()
	var actions []string
	if o.deps.Health != nil {
		actions = o.deps.Health.Actions()
	}
	subject, body := Summary(snap, actions)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SummaryTimeout)
	defer cancel()
	if err := o.deps.Notifier.Send(sendCtx, subject, body); err != nil {
		o.logger.Error("summary not sent", "err", err)
	}
	o.publish(ctx, events.TypeBatchCompleted, "", snap)

	o.update(func(st *RunStats) {
		st.Complete = nil
		st.Incomplete = nil
	})
	o.transitionTo(s.ToCheckingHealth())
}

func (o *Orchestrator) runHealth(ctx context.Context, s *CheckingHealthState) {
	if o.deps.Health != nil {
		failures, reconnects := o.deps.Mailbox.Counters()
		snap := o.Snapshot()
		rec := o.deps.Health.CheckHealth(ctx, health.Counters{
			Errors:             snap.EmailsFailed,
			Successes:          snap.EmailsSucceeded,
			ConnectionFailures: failures,
			Reconnects:         reconnects,
		})
		o.apply(rec)
	}

	o.deps.Mailbox.Close()

	if s.remaining == 0 {
		o.transitionTo(s.ToDone())
		return
	}
	if err := ctx.Err(); err != nil {
		o.transitionTo(&DoneState{err: err})
		return
	}
	if o.cfg.BatchDelay > 0 {
		o.logger.Info("waiting before next batch", "delay", o.cfg.BatchDelay, "remaining", s.remaining)
		if err := retry.Sleep(ctx, o.cfg.BatchDelay); err != nil {
			o.transitionTo(&DoneState{err: err})
			return
		}
	}
	o.transitionTo(s.ToConnecting())
}

func (o *Orchestrator) apply(rec health.Recommendation) {
	if rec.RunGC {
		o.logger.Info("running garbage collection")
		o.gc()
	}
	if rec.ReduceBatch {
		next := max(o.batchSize/2, 1)
		o.logger.Info("reducing batch size", "from", o.batchSize, "to", next)
		o.batchSize = next
		o.update(func(st *RunStats) { st.BatchSize = next })
	}
}

func (o *Orchestrator) finish(ctx context.Context, s *DoneState) (RunStats, error) {
	o.update(func(st *RunStats) { st.FinishedAt = time.Now().UTC() })
	snap := o.Snapshot()
	o.publish(ctx, events.TypeRunFinished, "", snap)

	attrs := []any{
		"run_id", snap.RunID,
		"batches", snap.Batches,
		"emails_processed", snap.EmailsProcessed,
		"emails_succeeded", snap.EmailsSucceeded,
		"emails_failed", snap.EmailsFailed,
		"postings_saved", snap.PostingsSaved,
	}
	if s.err != nil && !errors.Is(s.err, context.Canceled) {
		o.logger.Error("run aborted", append(attrs, "err", s.err)...)
	} else {
		o.logger.Info("run finished", attrs...)
	}
	return snap, s.err
}

func (o *Orchestrator) publish(ctx context.Context, typ, key string, data any) {
	if o.deps.Events == nil {
		return
	}
	e := events.MakeEvent(o.Snapshot().RunID, typ, key, 1, data)
	if err := o.deps.Events.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn("event publish failed", "type", typ, "err", err)
	}
}

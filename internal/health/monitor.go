// Package health samples process resources between batches and recommends
// mitigations: a forced GC for memory pressure, smaller batches for CPU.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Sample struct {
	At                 time.Time
	MemoryMB           float64
	CPUPercent         float64
	Errors             int
	Successes          int
	ConnectionFailures int
	Reconnects         int
}

// Counters are the orchestrator's live totals at check time.
type Counters struct {
	Errors             int
	Successes          int
	ConnectionFailures int
	Reconnects         int
}

type Thresholds struct {
	MemoryMB   float64
	CPUPercent float64
	ErrorRate  float64
}

// Recommendation is empty when the check was throttled.
type Recommendation struct {
	RunGC       bool
	ReduceBatch bool
}

type Monitor struct {
	interval   time.Duration
	thresholds Thresholds
	sampler    Sampler
	series     Series
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	last    time.Time
	sampled *Sample
	actions []string
}

type Option func(*Monitor)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func NewMonitor(interval time.Duration, th Thresholds, sampler Sampler, series Series, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if series == nil {
		series = NopSeries{}
	}
	m := &Monitor{
		interval:   interval,
		thresholds: th,
		sampler:    sampler,
		series:     series,
		now:        time.Now,
		logger:     logger.With("component", "health"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CheckHealth samples at most once per interval. The first call always samples.
func (m *Monitor) CheckHealth(ctx context.Context, c Counters) Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		return Recommendation{}
	}
	m.last = now

	var r Reading
	if m.sampler != nil {
		var err error
		if r, err = m.sampler.Sample(ctx); err != nil {
			m.logger.Warn("health sample failed", "err", err)
			r = Reading{}
		}
	}

	s := Sample{
		At:                 now,
		MemoryMB:           r.MemoryMB,
		CPUPercent:         r.CPUPercent,
		Errors:             c.Errors,
		Successes:          c.Successes,
		ConnectionFailures: c.ConnectionFailures,
		Reconnects:         c.Reconnects,
	}
	m.sampled = &s
	if err := m.series.Append(s); err != nil {
		m.logger.Warn("health series append failed", "err", err)
	}

	errRate, successRate := rates(c)
	m.logger.Info("health sample",
		"memory_mb", round1(r.MemoryMB),
		"cpu_percent", round1(r.CPUPercent),
		"error_rate", round1(errRate),
		"success_rate", round1(successRate),
		"connection_failures", c.ConnectionFailures,
		"reconnects", c.Reconnects,
	)

	var rec Recommendation
	stamp := now.Format("15:04:05")
	if m.thresholds.MemoryMB > 0 && r.MemoryMB > m.thresholds.MemoryMB {
		rec.RunGC = true
		m.record(fmt.Sprintf("%s memory %.1f MB over %.0f MB: forcing garbage collection", stamp, r.MemoryMB, m.thresholds.MemoryMB))
	}
	if m.thresholds.CPUPercent > 0 && r.CPUPercent > m.thresholds.CPUPercent {
		rec.ReduceBatch = true
		m.record(fmt.Sprintf("%s cpu %.1f%% over %.0f%%: reducing batch size", stamp, r.CPUPercent, m.thresholds.CPUPercent))
	}
	if m.thresholds.ErrorRate > 0 && errRate > m.thresholds.ErrorRate {
		m.record(fmt.Sprintf("%s error rate %.2f over %.2f: needs review", stamp, errRate, m.thresholds.ErrorRate))
	}
	return rec
}

func (m *Monitor) record(action string) {
	m.logger.Warn("health threshold exceeded", "action", action)
	m.actions = append(m.actions, action)
}

// ResetActions forgets recorded actions; the orchestrator calls it when a run starts.
func (m *Monitor) ResetActions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = nil
}

// Actions returns a copy of every action recorded since the last reset.
func (m *Monitor) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

// Last returns the most recent sample, if any.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sampled == nil {
		return Sample{}, false
	}
	return *m.sampled, true
}

func rates(c Counters) (errRate, successRate float64) {
	total := c.Errors + c.Successes
	if total == 0 {
		return 0, 0
	}
	return float64(c.Errors) / float64(total), float64(c.Successes) / float64(total)
}

func round1(f float64) float64 { return float64(int(f*10+0.5)) / 10 }

package health

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// Series is the append-only sink for health samples.
type Series interface {
	Append(s Sample) error
}

type NopSeries struct{}

func (NopSeries) Append(Sample) error { return nil }

var seriesHeader = []string{
	"timestamp", "memory_mb", "cpu_percent", "errors", "successes",
	"connection_failures", "reconnects",
}

// CSVSeries appends samples to a CSV file. A sidecar lock file keeps
// concurrent engine processes from interleaving rows.
type CSVSeries struct {
	path string
	lock *flock.Flock
}

func NewCSVSeries(path string) *CSVSeries {
	return &CSVSeries{path: path, lock: flock.New(path + ".lock")}
}

func (c *CSVSeries) Path() string { return c.path }

func (c *CSVSeries) Append(s Sample) error {
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", c.path, err)
	}
	defer func() { _ = c.lock.Unlock() }()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(seriesHeader); err != nil {
			return err
		}
	}
	if err := w.Write(s.row()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (s Sample) row() []string {
	return []string{
		s.At.UTC().Format(time.RFC3339),
		strconv.FormatFloat(s.MemoryMB, 'f', 2, 64),
		strconv.FormatFloat(s.CPUPercent, 'f', 2, 64),
		strconv.Itoa(s.Errors),
		strconv.Itoa(s.Successes),
		strconv.Itoa(s.ConnectionFailures),
		strconv.Itoa(s.Reconnects),
	}
}

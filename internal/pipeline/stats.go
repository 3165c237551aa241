package pipeline

import "time"

// RunStats are the counters of one run. Complete and Incomplete hold the
// titles of the current batch only and are cleared after each summary.
type RunStats struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	State      string    `json:"state"`
	BatchSize  int       `json:"batch_size"`
	Batches    int       `json:"batches"`

	EmailsProcessed   int `json:"emails_processed"`
	EmailsSucceeded   int `json:"emails_succeeded"`
	EmailsFailed      int `json:"emails_failed"`
	PostingsExtracted int `json:"postings_extracted"`
	PostingsSaved     int `json:"postings_saved"`

	Complete   []string `json:"complete"`
	Incomplete []string `json:"incomplete"`
}

func (s RunStats) clone() RunStats {
	s.Complete = append([]string(nil), s.Complete...)
	s.Incomplete = append([]string(nil), s.Incomplete...)
	return s
}

// Package events carries pipeline events to the local SSE hub and,
// optionally, to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TypePostingSaved   = "posting_saved"
	TypeBatchCompleted = "batch_completed"
	TypeRunFinished    = "run_finished"
)

type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Key     string          `json:"key,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MakeEvent stamps a new event. key picks the Kafka partition; it defaults to runID.
func MakeEvent(runID, typ, key string, v int, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	if key == "" {
		key = runID
	}
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Version: v,
		At:      time.Now().UTC(),
		RunID:   runID,
		Key:     key,
		Data:    raw,
	}
}

func (e Event) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

package models

import (
	"encoding/json"
	"time"
)

const (
	OutcomeReady     = "ready"
	OutcomeErrored   = "errored"
	OutcomeDiscarded = "discarded"
)

// FetchRecord describes one completed fetch attempt.
type FetchRecord struct {
	ID          string        `json:"id"`
	Location    string        `json:"location"`
	Outcome     string        `json:"outcome"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Message     string        `json:"message,omitempty"`
	Temperature string        `json:"temperature,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"-"`
}

func (r FetchRecord) MarshalJSON() ([]byte, error) {
	type alias FetchRecord
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{
		alias:      alias(r),
		DurationMS: r.Duration.Milliseconds(),
	})
}

package models

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusErrored Status = "errored"
)

// RefreshState is exactly one of idle, loading, ready or errored.
// Fields are unexported so a state can only be built through the
// constructors below: a report exists only when ready, an error message
// only when errored.
type RefreshState struct {
	status   Status
	location string
	report   *Report
	err      string
}

func IdleState() RefreshState {
	return RefreshState{status: StatusIdle}
}

func LoadingState(location string) RefreshState {
	return RefreshState{status: StatusLoading, location: location}
}

func ReadyState(location string, report *Report) RefreshState {
	return RefreshState{status: StatusReady, location: location, report: report}
}

func ErroredState(location, message string) RefreshState {
	return RefreshState{status: StatusErrored, location: location, err: message}
}

func (s RefreshState) Status() Status   { return s.status }
func (s RefreshState) Location() string { return s.location }

// Report returns the fetched report; nil unless the state is ready.
func (s RefreshState) Report() *Report { return s.report }

// Err returns the error message; empty unless the state is errored.
func (s RefreshState) Err() string { return s.err }

func (s RefreshState) IsLoading() bool { return s.status == StatusLoading }
func (s RefreshState) IsReady() bool   { return s.status == StatusReady }
func (s RefreshState) IsErrored() bool { return s.status == StatusErrored }

type refreshStateJSON struct {
	Status   Status  `json:"status"`
	Location string  `json:"location,omitempty"`
	Report   *Report `json:"report,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func (s RefreshState) MarshalJSON() ([]byte, error) {
	status := s.status
	if status == "" {
		status = StatusIdle
	}
	return json.Marshal(refreshStateJSON{
		Status:   status,
		Location: s.location,
		Report:   s.report,
		Error:    s.err,
	})
}

// Snapshot is what the presentation layer renders. LastReport and
// LastUpdated belong to the most recent successful fetch and survive
// later loading and errored transitions.
type Snapshot struct {
	State       RefreshState `json:"state"`
	LastUpdated *time.Time   `json:"last_updated,omitempty"`
	LastReport  *Report      `json:"last_report,omitempty"`
}

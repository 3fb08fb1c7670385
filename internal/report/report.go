// Package report describes the outcome of an install run and delivers it
// to sinks.
package report

import (
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Overall outcome of a run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusDryRun    Status = "dry-run"
)

// Attempt outcomes.
const (
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
	OutcomeSucceeded   = "succeeded"
)

// Attempt is one install strategy tried by a step.
type Attempt struct {
	Strategy string `json:"strategy"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

type StepResult struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Phase        string        `json:"phase"`
	Owner        string        `json:"owner,omitempty"`
	Summary      string        `json:"summary"`
	State        State         `json:"state"`
	FailSilently bool          `json:"fail_silently,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	Error        string        `json:"error,omitempty"`
	Attempts     []Attempt     `json:"attempts,omitempty"`
	Duration     time.Duration `json:"duration_ns,omitempty"`
}

type Report struct {
	RunID      string       `json:"run_id"`
	Manifest   string       `json:"manifest"`
	Platform   string       `json:"platform"`
	Runtime    string       `json:"runtime,omitempty"`
	Status     Status       `json:"status"`
	DryRun     bool         `json:"dry_run,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
}

// Failed reports whether a step that is not fail_silently ended Failed.
func (r *Report) Failed() bool {
	for _, s := range r.Steps {
		if s.State == StateFailed && !s.FailSilently {
			return true
		}
	}
	return false
}

// Count returns how many steps ended in state.
func (r *Report) Count(state State) int {
	n := 0
	for _, s := range r.Steps {
		if s.State == state {
			n++
		}
	}
	return n
}

func (r *Report) Step(id string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// ExitCode is the process exit status for the run.
func (r *Report) ExitCode() int {
	switch {
	case r.Failed():
		return 1
	case r.Status == StatusCancelled:
		return 130
	}
	return 0
}

package domain

import "time"

// ItemStatus is the lifecycle state of a work item.
// pending -> running -> {succeeded | failed | timed-out}; retry attempts are
// running -> running self-loops. Terminal states are final.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusRunning   ItemStatus = "running"
	StatusSucceeded ItemStatus = "succeeded"
	StatusFailed    ItemStatus = "failed"
	StatusTimedOut  ItemStatus = "timed-out"
)

// Terminal reports whether the status is final.
func (s ItemStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// ItemOutcome is the terminal result of one work item.
type ItemOutcome struct {
	Index    int            `json:"index"`
	Status   ItemStatus     `json:"status"`
	Attempts int            `json:"attempts"`
	Output   map[string]any `json:"output,omitempty"`
	Failure  *Failure       `json:"failure,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
}

// Report is the final artifact of a run. Items are ordered by sequence
// index, so two runs with identical inputs and deterministic capabilities
// produce identical reports regardless of completion interleaving.
type Report struct {
	RunID      string    `json:"run_id"`
	Graph      string    `json:"graph"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`

	Items []ItemOutcome `json:"items"`

	// Output is the state value merged by the terminal node, if any.
	Output map[string]any `json:"output,omitempty"`

	// Err records a run-level error for runs that degraded (for example the
	// run deadline fired mid-batch) but still aggregated partial results.
	// A report with Err set means "did not complete"; failed items alone do
	// not set it.
	Err string `json:"error,omitempty"`
}

// Completed reports whether the run finished without a run-level error.
func (r *Report) Completed() bool { return r.Err == "" }

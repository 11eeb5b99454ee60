package domain

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by the state store for an absent key.
var ErrKeyNotFound = errors.New("state key not found")

// ErrUnknownCapability is returned when a node references a name that was
// never registered.
var ErrUnknownCapability = errors.New("capability not registered")

// ErrReportNotFound is returned by report stores for an unknown run id.
var ErrReportNotFound = errors.New("report not found")

// ErrDuplicateIndex is returned when an ordered-append key receives two
// contributions with the same sequence index.
var ErrDuplicateIndex = errors.New("duplicate sequence index")

// RunError aborts the entire run: a sequential node exhausted its retries or
// hit a fatal failure. No report is produced and the run state is discarded.
type RunError struct {
	NodeID string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run aborted at node %q: %v", e.NodeID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

package domain

import "fmt"

// Class is the outcome classification of a capability failure.
type Class int

const (
	// ClassRetryable failures may be attempted again, budget permitting.
	ClassRetryable Class = iota
	// ClassFatal failures stop the attempt loop immediately.
	ClassFatal
)

// Failure kinds. Kind is free-form; these are the ones the engine itself
// produces or gives meaning to.
const (
	// KindTimedOut marks a per-attempt deadline that elapsed. Always retryable.
	KindTimedOut = "timed_out"
	// KindCancelled marks an attempt cut short by run-level cancellation.
	KindCancelled = "cancelled"
	// KindPanic marks a capability that panicked. Always fatal.
	KindPanic = "panic"
)

// Failure is a structured failure value returned (not thrown) by a
// capability. It implements error so it travels through normal Go plumbing,
// but carries enough structure for classification and reporting without
// string matching.
type Failure struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`

	// Fatal marks the failure as non-retryable regardless of attempts left.
	Fatal bool `json:"fatal,omitempty"`
}

func (f *Failure) Error() string {
	if f.Kind == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Class returns the failure's classification.
func (f *Failure) Class() Class {
	if f.Fatal {
		return ClassFatal
	}
	return ClassRetryable
}

// Retryablef builds a retryable failure.
func Retryablef(kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Fatalf builds a fatal failure.
func Fatalf(kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Fatal: true}
}

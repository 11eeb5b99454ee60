package domain

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc maps an attempt number (1-based, the attempt that just failed)
// to the delay before the next attempt.
type BackoffFunc func(attempt int) time.Duration

// ClassifyFunc maps a capability error to a Class.
type ClassifyFunc func(err error) Class

// Policy governs the attempt loop of a single node (for sequential nodes)
// or of each work item stage (for nodes between fan-out and fan-in).
type Policy struct {
	// MaxAttempts is the total attempt budget, >= 1. Zero means 1.
	MaxAttempts int
	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff BackoffFunc
	// Timeout bounds each attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	// Classify decides retryable vs fatal. Nil means DefaultClassify.
	Classify ClassifyFunc
}

// Normalized returns a copy with defaults applied.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Classify == nil {
		p.Classify = DefaultClassify
	}
	return p
}

// DefaultClassify treats explicit *Failure values by their own class, attempt
// timeouts as retryable, and anything else as retryable. Fatal is always an
// explicit decision, never an inference from error text.
func DefaultClassify(err error) Class {
	var f *Failure
	if errors.As(err, &f) {
		return f.Class()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetryable
	}
	return ClassRetryable
}

// ConstantBackoff waits the same delay between every attempt.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff doubles the base delay after each failed attempt.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
		}
		return d
	}
}

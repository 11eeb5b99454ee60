package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
)

// runWithPolicy drives a capability's attempt loop under a node policy.
// It returns the output, the number of attempts consumed, and the last error
// (nil on success). A per-attempt timeout is converted into a retryable
// timed-out failure that consumes one attempt; run-level cancellation stops
// the loop immediately without consuming the remaining budget.
func runWithPolicy(ctx context.Context, p domain.Policy, logger *slog.Logger, fn domain.CapabilityFunc, input map[string]any) (map[string]any, int, error) {
	p = p.Normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, cancelledFailure(err)
		}

		out, err := invokeAttempt(ctx, p.Timeout, fn, input)
		if err == nil {
			return out, attempt, nil
		}

		// The run itself was cancelled mid-attempt; no point retrying.
		if ctx.Err() != nil {
			return nil, attempt, cancelledFailure(ctx.Err())
		}
		lastErr = err

		if p.Classify(err) == domain.ClassFatal {
			logger.Debug("fatal failure, aborting attempts", "attempt", attempt, "err", err)
			return nil, attempt, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := time.Duration(0)
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		logger.Debug("retryable failure, backing off", "attempt", attempt, "wait", wait, "err", err)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, attempt, cancelledFailure(ctx.Err())
			case <-timer.C:
			}
		}
	}
	return nil, p.MaxAttempts, lastErr
}

// invokeAttempt runs one attempt, applying the per-attempt deadline and
// converting panics into fatal failures so a crashing capability cannot take
// down sibling items or the engine.
func invokeAttempt(ctx context.Context, timeout time.Duration, fn domain.CapabilityFunc, input map[string]any) (out map[string]any, err error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = domain.Fatalf(domain.KindPanic, "capability panicked: %v", r)
		}
	}()

	out, err = fn(attemptCtx, input)
	if err != nil {
		// An elapsed attempt deadline is a retryable timed-out failure, but
		// only when the parent context is still live.
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, domain.Retryablef(domain.KindTimedOut, "attempt deadline (%s) elapsed", timeout)
		}
		return nil, err
	}
	return out, nil
}

func cancelledFailure(cause error) error {
	f := &domain.Failure{Kind: domain.KindCancelled, Message: fmt.Sprintf("run cancelled: %v", cause)}
	return f
}

// timedOut reports whether err represents an attempt timeout or run
// cancellation, which map to the timed-out item status.
func timedOut(err error) bool {
	var f *domain.Failure
	if errors.As(err, &f) {
		return f.Kind == domain.KindTimedOut || f.Kind == domain.KindCancelled
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

package runtime

import (
	"log/slog"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
)

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithMaxConcurrency bounds the number of work items in flight at once.
func WithMaxConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithRunTimeout sets the overall run deadline. When it fires, in-flight
// items are cancelled, unfinished items are marked timed-out, and the run
// still aggregates and reports what it has.
func WithRunTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.runTimeout = d
	}
}

// WithNodePolicy sets the error policy for one node.
func WithNodePolicy(nodeID string, p domain.Policy) EngineOption {
	return func(e *Engine) {
		e.policies[nodeID] = p
	}
}

// WithDefaultPolicy sets the policy for nodes without an explicit one.
func WithDefaultPolicy(p domain.Policy) EngineOption {
	return func(e *Engine) {
		e.defaultPolicy = p
	}
}

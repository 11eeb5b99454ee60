// Package runtime is the execution core: it drives a validated graph from
// entry to terminal, fans a batch out across a bounded worker pool, and joins
// it back at the fan-in barrier into a deterministic report.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/registry"
)

// Engine drives a graph end-to-end. Sequential nodes run on the engine's own
// goroutine, never concurrently with each other; only the batch between
// fan-out and fan-in runs in parallel.
type Engine struct {
	graph *graph.Graph
	caps  *registry.Registry

	policies       map[string]domain.Policy
	defaultPolicy  domain.Policy
	maxConcurrency int
	runTimeout     time.Duration
	hooks          domain.LifecycleHooks
	logger         *slog.Logger
}

// NewEngine creates an engine for a validated graph.
func NewEngine(g *graph.Graph, caps *registry.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:          g,
		caps:           caps,
		policies:       make(map[string]domain.Policy),
		maxConcurrency: defaultConcurrency(),
		logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultConcurrency() int {
	n := goruntime.NumCPU()
	if n > 4 {
		n = 4
	}
	return n
}

// Submit runs the pipeline to completion and returns the final report.
// It blocks until the run is terminal or cancelled.
//
// Outcomes:
//   - (report, nil): the run completed; failed items, if any, are inside.
//   - (nil, *domain.RunError): a sequential node exhausted its policy or hit
//     a fatal failure; the run state is discarded.
//   - (report, err): the run deadline fired mid-batch; the report holds the
//     partial aggregation and report.Err records the degradation.
func (e *Engine) Submit(ctx context.Context, initial map[string]any) (*domain.Report, error) {
	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID, "graph", e.graph.Name())

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	store := NewStore(e.graph.Policies())
	for k, v := range initial {
		if err := store.Merge(k, v); err != nil {
			return nil, fmt.Errorf("seeding initial state: %w", err)
		}
	}

	started := time.Now()
	logger.Info("run started", "nodes", len(e.graph.Nodes()), "max_concurrency", e.maxConcurrency)
	e.emitRun(ctx, domain.EventRunStart, runID, nil, "")

	var (
		agg      aggregateResult
		total    int
		fanDone  bool
		degraded error
	)

	for _, node := range e.graph.Sequence() {
		nodeLogger := logger.With("node", node.ID, "kind", node.Kind)
		nodeStart := time.Now()
		e.emitNode(ctx, domain.EventNodeEnter, runID, node, 0, "")

		out, err := e.runSequential(ctx, nodeLogger, store, node)
		if err != nil {
			e.emitNode(ctx, domain.EventNodeLeave, runID, node, time.Since(nodeStart), err.Error())
			if fanDone && ctx.Err() != nil {
				// The batch is merged; a deadline after the barrier degrades
				// the run instead of discarding already-aggregated results.
				degraded = ctx.Err()
				break
			}
			runErr := &domain.RunError{NodeID: node.ID, Err: err}
			nodeLogger.Error("run aborted", "err", err)
			e.emitRun(ctx, domain.EventRunEnd, runID, nil, runErr.Error())
			return nil, runErr
		}

		if node.Kind == domain.KindFanOut {
			batch, expandErr := e.expandBatch(node, out)
			if expandErr != nil {
				runErr := &domain.RunError{NodeID: node.ID, Err: expandErr}
				e.emitRun(ctx, domain.EventRunEnd, runID, nil, runErr.Error())
				return nil, runErr
			}
			total = batch.Size()
			nodeLogger.Info("batch dispatched", "items", total)

			disp := &dispatcher{
				stages:    e.graph.Chain(),
				invoke:    e.caps.Invoke,
				policyFor: e.policyFor,
				limit:     e.maxConcurrency,
				hooks:     e.hooks,
				logger:    logger,
				runID:     runID,
				fanOutID:  node.ID,
			}
			barrier := &aggregator{store: store, key: e.graph.FanIn().OutputKey, logger: logger}
			store.InitSequence(barrier.key)

			var aggErr error
			agg, aggErr = barrier.await(disp.run(ctx, batch))
			if aggErr != nil {
				runErr := &domain.RunError{NodeID: e.graph.FanIn().ID, Err: aggErr}
				e.emitRun(ctx, domain.EventRunEnd, runID, nil, runErr.Error())
				return nil, runErr
			}
			fanDone = true
		}

		e.emitNode(ctx, domain.EventNodeLeave, runID, node, time.Since(nodeStart), "")

		// The run deadline fired during the batch: everything dispatched has
		// been aggregated, but nodes after fan-in cannot run anymore. Keep
		// the partial results instead of discarding the run.
		if ctx.Err() != nil {
			degraded = ctx.Err()
			break
		}
	}

	report := &domain.Report{
		RunID:      runID,
		Graph:      e.graph.Name(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Total:      total,
		Succeeded:  agg.succeeded,
		Failed:     agg.failed,
		TimedOut:   agg.timedOut,
		Items:      agg.outcomes,
	}
	if key := e.graph.Terminal().OutputKey; key != "" && store.Has(key) {
		if v, err := store.Get(key); err == nil {
			if m, ok := v.(map[string]any); ok {
				report.Output = m
			}
		}
	}
	if degraded != nil {
		report.Err = fmt.Sprintf("run degraded: %v", degraded)
	}

	e.emitRun(ctx, domain.EventRunEnd, runID, report, report.Err)
	logger.Info("run finished",
		"duration", report.FinishedAt.Sub(report.StartedAt),
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"timed_out", report.TimedOut,
		"degraded", degraded != nil,
	)

	if degraded != nil {
		return report, fmt.Errorf("run %s degraded: %w", runID, degraded)
	}
	return report, nil
}

// runSequential projects the node's input from the store, drives the
// capability under the node's policy (with the optional fallback), and
// merges the output with overwrite semantics. Fan-out nodes share this path
// for their expansion capability.
func (e *Engine) runSequential(ctx context.Context, logger *slog.Logger, store *Store, node *domain.Node) (map[string]any, error) {
	input, err := project(store, node.Inputs)
	if err != nil {
		return nil, err
	}

	policy := e.policyFor(node.ID)
	out, attempts, err := runWithPolicy(ctx, policy, logger, e.capability(node.Capability), input)
	if err != nil {
		if node.Fallback == "" || ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("primary capability exhausted, trying fallback", "fallback", node.Fallback, "err", err)
		out, err = invokeAttempt(ctx, policy.Timeout, e.capability(node.Fallback), input)
		if err != nil {
			return nil, fmt.Errorf("fallback %q failed: %w", node.Fallback, err)
		}
		attempts++
	}
	logger.Debug("node capability succeeded", "attempts", attempts)

	if node.OutputKey != "" && out != nil {
		if err := store.Merge(node.OutputKey, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// expandBatch pulls the sub-task payload list out of the fan-out output and
// assigns sequence indexes. The batch is created atomically here and is the
// only one of the run.
func (e *Engine) expandBatch(node *domain.Node, out map[string]any) (domain.WorkBatch, error) {
	raw, ok := out[node.ItemsKey]
	if !ok {
		return domain.WorkBatch{}, fmt.Errorf("fan-out output has no %q list", node.ItemsKey)
	}

	var payloads []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		payloads = v
	case []any:
		payloads = make([]map[string]any, 0, len(v))
		for i, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				return domain.WorkBatch{}, fmt.Errorf("fan-out item #%d is %T, want a map", i, entry)
			}
			payloads = append(payloads, m)
		}
	default:
		return domain.WorkBatch{}, fmt.Errorf("fan-out key %q holds %T, want a list of maps", node.ItemsKey, raw)
	}

	return domain.NewWorkBatch(payloads), nil
}

func (e *Engine) policyFor(nodeID string) domain.Policy {
	if p, ok := e.policies[nodeID]; ok {
		return p
	}
	return e.defaultPolicy
}

func (e *Engine) capability(name string) domain.CapabilityFunc {
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return e.caps.Invoke(ctx, name, input)
	}
}

// project builds a capability input from the declared state keys. A missing
// key aborts the run unless the key is marked optional with a '?' suffix.
func project(store *Store, keys []string) (map[string]any, error) {
	input := make(map[string]any, len(keys))
	for _, key := range keys {
		optional := strings.HasSuffix(key, "?")
		name := strings.TrimSuffix(key, "?")
		v, err := store.Get(name)
		if err != nil {
			if optional {
				continue
			}
			return nil, fmt.Errorf("projecting input: %w", err)
		}
		input[name] = v
	}
	return input, nil
}

func (e *Engine) emitRun(ctx context.Context, typ domain.EventType, runID string, report *domain.Report, errMsg string) {
	hook := e.hooks.OnRunStart
	if typ == domain.EventRunEnd {
		hook = e.hooks.OnRunEnd
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.RunEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, RunID: runID},
		Graph:     e.graph.Name(),
		Report:    report,
		Err:       errMsg,
	})
}

func (e *Engine) emitNode(ctx context.Context, typ domain.EventType, runID string, node *domain.Node, d time.Duration, errMsg string) {
	hook := e.hooks.OnNodeEnter
	if typ == domain.EventNodeLeave {
		hook = e.hooks.OnNodeLeave
	}
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, RunID: runID},
		NodeID:    node.ID,
		NodeKind:  node.Kind,
		Duration:  d,
		Err:       errMsg,
	})
}

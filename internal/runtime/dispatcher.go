package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
)

// dispatcher runs a work batch under a concurrency limit. Each item flows
// through the graph's item stages in order, every stage under its own
// policy-governed attempt loop, fully isolated from its siblings. Exactly one
// terminal outcome is emitted per item.
type dispatcher struct {
	stages    []*domain.Node
	invoke    invokeFunc
	policyFor func(nodeID string) domain.Policy
	limit     int
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	runID     string
	fanOutID  string
}

type invokeFunc func(ctx context.Context, capability string, input map[string]any) (map[string]any, error)

// run dispatches the batch and returns the outcome channel. The channel is
// closed once every item has reached a terminal status, which is what gives
// the aggregator its barrier.
func (d *dispatcher) run(ctx context.Context, batch domain.WorkBatch) <-chan domain.ItemOutcome {
	jobs := make(chan domain.WorkItem)
	outcomes := make(chan domain.ItemOutcome, batch.Size())

	workers := d.limit
	if workers > batch.Size() {
		workers = batch.Size()
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			logger := d.logger.With("worker", workerID)
			for item := range jobs {
				// Items still queued when the run is cancelled count as
				// timed-out; they are reported, never silently dropped.
				if err := ctx.Err(); err != nil {
					outcomes <- domain.ItemOutcome{
						Index:   item.Index,
						Status:  domain.StatusTimedOut,
						Failure: &domain.Failure{Kind: domain.KindCancelled, Message: err.Error()},
					}
					continue
				}
				outcomes <- d.executeItem(ctx, logger, item)
			}
		}(w)
	}

	go func() {
		defer close(jobs)
		for _, item := range batch.Items {
			jobs <- item
		}
	}()
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}

// executeItem runs one item through the stage chain and returns its terminal
// outcome. Stage outputs feed the next stage's input; state is untouched
// until the fan-in barrier merges the outcome.
func (d *dispatcher) executeItem(ctx context.Context, logger *slog.Logger, item domain.WorkItem) domain.ItemOutcome {
	start := time.Now()
	logger = logger.With("item", item.Index)
	d.emitItemStart(ctx, item.Index)

	payload := item.Payload
	attempts := 0
	for _, stage := range d.stages {
		stageLogger := logger.With("stage", stage.ID)
		out, n, err := runWithPolicy(ctx, d.policyFor(stage.ID), stageLogger, d.capability(stage.Capability), payload)
		attempts += n
		if err != nil {
			status := domain.StatusFailed
			if timedOut(err) {
				status = domain.StatusTimedOut
			}
			stageLogger.Warn("item stage failed", "status", status, "attempts", n, "err", err)
			outcome := domain.ItemOutcome{
				Index:    item.Index,
				Status:   status,
				Attempts: attempts,
				Failure:  asFailure(err),
				Duration: time.Since(start),
			}
			d.emitItemEnd(ctx, &outcome)
			return outcome
		}
		payload = out
	}

	outcome := domain.ItemOutcome{
		Index:    item.Index,
		Status:   domain.StatusSucceeded,
		Attempts: attempts,
		Output:   payload,
		Duration: time.Since(start),
	}
	logger.Debug("item succeeded", "attempts", attempts, "duration", outcome.Duration)
	d.emitItemEnd(ctx, &outcome)
	return outcome
}

func (d *dispatcher) capability(name string) domain.CapabilityFunc {
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return d.invoke(ctx, name, input)
	}
}

func (d *dispatcher) emitItemStart(ctx context.Context, index int) {
	if d.hooks.OnItemStart == nil {
		return
	}
	d.hooks.OnItemStart(ctx, &domain.ItemEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventItemStart, RunID: d.runID},
		NodeID:    d.fanOutID,
		Index:     index,
	})
}

func (d *dispatcher) emitItemEnd(ctx context.Context, outcome *domain.ItemOutcome) {
	if d.hooks.OnItemEnd == nil {
		return
	}
	d.hooks.OnItemEnd(ctx, &domain.ItemEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventItemEnd, RunID: d.runID},
		NodeID:    d.fanOutID,
		Index:     outcome.Index,
		Outcome:   outcome,
	})
}

func asFailure(err error) *domain.Failure {
	var f *domain.Failure
	if errors.As(err, &f) {
		return f
	}
	return &domain.Failure{Kind: "error", Message: err.Error()}
}

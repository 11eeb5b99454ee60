package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergolab/pergola/internal/logging"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
	"github.com/pergolab/pergola/pkg/registry"
)

// buildTestGraph wires prep -> expand -> work -> join -> finish with the
// given capability implementations.
func buildTestGraph(t *testing.T, reg *registry.Registry) *graph.Graph {
	t.Helper()
	nodes := []domain.Node{
		{ID: "prep", Kind: domain.KindSequential, Capability: "prep", Inputs: []string{"topic", "hint?"}, OutputKey: "notes"},
		{ID: "expand", Kind: domain.KindFanOut, Capability: "expand", Inputs: []string{"notes"}},
		{ID: "work", Kind: domain.KindSequential, Capability: "work"},
		{ID: "join", Kind: domain.KindFanIn},
		{ID: "finish", Kind: domain.KindTerminal, Capability: "finish", Inputs: []string{"results"}, OutputKey: "summary"},
	}
	edges := []domain.Edge{
		{From: "prep", To: "expand"},
		{From: "expand", To: "work"},
		{From: "work", To: "join"},
		{From: "join", To: "finish"},
	}
	g, err := graph.Build("test", nodes, edges, reg,
		graph.WithStateKey("topic", domain.MergeOverwrite))
	require.NoError(t, err)
	return g
}

func defaultCapabilities(itemCount int) *registry.Registry {
	reg := registry.New()
	reg.Register("prep", func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"topic": input["topic"]}, nil
	})
	reg.Register("expand", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		items := make([]any, itemCount)
		for i := range items {
			items[i] = map[string]any{"n": i}
		}
		return map[string]any{"items": items}, nil
	})
	reg.Register("work", func(_ context.Context, input map[string]any) (map[string]any, error) {
		return input, nil
	})
	reg.Register("finish", func(_ context.Context, input map[string]any) (map[string]any, error) {
		results, _ := input["results"].([]any)
		return map[string]any{"count": len(results)}, nil
	})
	return reg
}

func TestEngine_EndToEnd(t *testing.T) {
	reg := defaultCapabilities(5)
	// Item 2 fails fatally; its siblings must be untouched.
	reg.Register("work", func(_ context.Context, input map[string]any) (map[string]any, error) {
		if input["n"].(int) == 2 {
			return nil, domain.Fatalf("schema", "item 2 rejected")
		}
		return input, nil
	})

	eng := NewEngine(buildTestGraph(t, reg), reg,
		WithLogger(logging.NewNop()),
		WithMaxConcurrency(2),
	)

	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err, "item failures never abort the run")
	require.NotNil(t, report)

	_, parseErr := uuid.Parse(report.RunID)
	assert.NoError(t, parseErr, "run ids are whole UUIDs")

	assert.True(t, report.Completed())
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.TimedOut)

	require.Len(t, report.Items, 5)
	for i, item := range report.Items {
		assert.Equal(t, i, item.Index, "items ordered by sequence index")
	}
	assert.Equal(t, domain.StatusFailed, report.Items[2].Status)
	require.NotNil(t, report.Items[2].Failure)
	assert.Equal(t, "schema", report.Items[2].Failure.Kind)

	// The terminal capability saw all 5 outcomes through the barrier key.
	require.NotNil(t, report.Output)
	assert.Equal(t, 5, report.Output["count"])
}

func TestEngine_DeterministicAcrossRuns(t *testing.T) {
	reg := defaultCapabilities(8)
	eng := NewEngine(buildTestGraph(t, reg), reg,
		WithLogger(logging.NewNop()),
		WithMaxConcurrency(4),
	)

	first, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)
	second, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)

	require.Len(t, first.Items, 8)
	require.Len(t, second.Items, 8)
	for i := range first.Items {
		assert.Equal(t, first.Items[i].Index, second.Items[i].Index)
		assert.Equal(t, first.Items[i].Output, second.Items[i].Output)
	}
}

func TestEngine_SequentialFailureAbortsRun(t *testing.T) {
	reg := defaultCapabilities(3)
	var expanded atomic.Bool
	reg.Register("prep", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, domain.Fatalf("config", "bad input")
	})
	reg.Register("expand", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		expanded.Store(true)
		return map[string]any{"items": []any{}}, nil
	})

	eng := NewEngine(buildTestGraph(t, reg), reg, WithLogger(logging.NewNop()))

	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	assert.Nil(t, report, "an aborted run has no report")

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "prep", runErr.NodeID)
	assert.False(t, expanded.Load(), "no batch may be dispatched after an abort before fan-out")
}

func TestEngine_MissingRequiredInputAborts(t *testing.T) {
	reg := defaultCapabilities(2)
	eng := NewEngine(buildTestGraph(t, reg), reg, WithLogger(logging.NewNop()))

	// "topic" is a required input of prep and is never seeded.
	_, err := eng.Submit(context.Background(), nil)

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "prep", runErr.NodeID)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestEngine_OptionalInputMayBeAbsent(t *testing.T) {
	reg := defaultCapabilities(2)
	seen := make(chan map[string]any, 1)
	reg.Register("prep", func(_ context.Context, input map[string]any) (map[string]any, error) {
		seen <- input
		return map[string]any{"topic": input["topic"]}, nil
	})

	eng := NewEngine(buildTestGraph(t, reg), reg, WithLogger(logging.NewNop()))
	_, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)

	input := <-seen
	assert.Equal(t, "soil", input["topic"])
	_, hasHint := input["hint"]
	assert.False(t, hasHint, "absent optional keys are simply omitted")
}

func TestEngine_RetryPolicyOnSequentialNode(t *testing.T) {
	reg := defaultCapabilities(2)
	var calls atomic.Int64
	reg.Register("prep", func(_ context.Context, input map[string]any) (map[string]any, error) {
		if calls.Add(1) < 3 {
			return nil, domain.Retryablef("flaky", "not yet")
		}
		return map[string]any{"topic": input["topic"]}, nil
	})

	eng := NewEngine(buildTestGraph(t, reg), reg,
		WithLogger(logging.NewNop()),
		WithNodePolicy("prep", domain.Policy{MaxAttempts: 3}),
	)

	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)
	assert.True(t, report.Completed())
	assert.Equal(t, int64(3), calls.Load())
}

func TestEngine_FallbackOnSequentialNode(t *testing.T) {
	reg := defaultCapabilities(2)
	reg.Register("prep", func(context.Context, map[string]any) (map[string]any, error) {
		return nil, domain.Fatalf("llm", "primary down")
	})
	reg.Register("backup", func(_ context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"topic": input["topic"], "fallback": true}, nil
	})

	nodes := []domain.Node{
		{ID: "prep", Kind: domain.KindSequential, Capability: "prep", Fallback: "backup", Inputs: []string{"topic"}, OutputKey: "notes"},
		{ID: "expand", Kind: domain.KindFanOut, Capability: "expand", Inputs: []string{"notes"}},
		{ID: "work", Kind: domain.KindSequential, Capability: "work"},
		{ID: "join", Kind: domain.KindFanIn},
		{ID: "finish", Kind: domain.KindTerminal, Capability: "finish", Inputs: []string{"results"}, OutputKey: "summary"},
	}
	edges := []domain.Edge{
		{From: "prep", To: "expand"},
		{From: "expand", To: "work"},
		{From: "work", To: "join"},
		{From: "join", To: "finish"},
	}
	g, err := graph.Build("test", nodes, edges, reg,
		graph.WithStateKey("topic", domain.MergeOverwrite))
	require.NoError(t, err)

	eng := NewEngine(g, reg, WithLogger(logging.NewNop()))
	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err, "the fallback should rescue the node")
	assert.True(t, report.Completed())
}

func TestEngine_RunTimeoutDegradesGracefully(t *testing.T) {
	reg := defaultCapabilities(4)
	reg.Register("work", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		select {
		case <-time.After(20 * time.Millisecond):
			return input, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	eng := NewEngine(buildTestGraph(t, reg), reg,
		WithLogger(logging.NewNop()),
		WithMaxConcurrency(1),
		WithRunTimeout(35*time.Millisecond),
	)

	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.Error(t, err, "a degraded run reports its deadline")
	require.NotNil(t, report, "partial aggregation must be kept")

	assert.False(t, report.Completed())
	assert.NotEmpty(t, report.Err)
	assert.Equal(t, 4, report.Total)
	assert.Len(t, report.Items, 4, "every item has a terminal outcome even after the deadline")
	assert.Greater(t, report.Succeeded, 0, "items finished before the deadline are kept")
	assert.Greater(t, report.TimedOut, 0, "items cut off by the deadline are marked timed-out")
}

func TestEngine_EmitsRunAndNodeEvents(t *testing.T) {
	reg := defaultCapabilities(2)

	var runStarts, runEnds, nodeEnters, nodeLeaves atomic.Int64
	hooks := domain.LifecycleHooks{
		OnRunStart:  func(context.Context, *domain.RunEvent) { runStarts.Add(1) },
		OnRunEnd:    func(context.Context, *domain.RunEvent) { runEnds.Add(1) },
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { nodeEnters.Add(1) },
		OnNodeLeave: func(context.Context, *domain.NodeEvent) { nodeLeaves.Add(1) },
	}

	eng := NewEngine(buildTestGraph(t, reg), reg,
		WithLogger(logging.NewNop()),
		WithLifecycleHooks(hooks),
	)
	_, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), runStarts.Load())
	assert.Equal(t, int64(1), runEnds.Load())
	// prep, expand, finish are engine-driven; the chain is per-item.
	assert.Equal(t, int64(3), nodeEnters.Load())
	assert.Equal(t, int64(3), nodeLeaves.Load())
}

func TestEngine_ExpandRejectsNonListItems(t *testing.T) {
	reg := defaultCapabilities(2)
	reg.Register("expand", func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"items": "not a list"}, nil
	})

	eng := NewEngine(buildTestGraph(t, reg), reg, WithLogger(logging.NewNop()))
	_, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})

	var runErr *domain.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "expand", runErr.NodeID)
}

func TestEngine_EmptyBatchCompletes(t *testing.T) {
	reg := defaultCapabilities(0)
	eng := NewEngine(buildTestGraph(t, reg), reg, WithLogger(logging.NewNop()))

	report, err := eng.Submit(context.Background(), map[string]any{"topic": "soil"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.True(t, report.Completed())
	assert.Equal(t, 0, report.Output["count"])
}

func TestDefaultConcurrency(t *testing.T) {
	n := defaultConcurrency()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 4)
}

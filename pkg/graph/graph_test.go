package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
)

// stubResolver registers a fixed capability set.
type stubResolver map[string]bool

func (r stubResolver) Has(name string) bool { return r[name] }

var caps = stubResolver{
	"prep":   true,
	"expand": true,
	"work":   true,
	"polish": true,
	"finish": true,
	"backup": true,
}

func validNodes() []domain.Node {
	return []domain.Node{
		{ID: "prep", Kind: domain.KindSequential, Capability: "prep", OutputKey: "notes"},
		{ID: "expand", Kind: domain.KindFanOut, Capability: "expand", Inputs: []string{"notes"}},
		{ID: "work", Kind: domain.KindSequential, Capability: "work"},
		{ID: "join", Kind: domain.KindFanIn},
		{ID: "finish", Kind: domain.KindTerminal, Capability: "finish", Inputs: []string{"results"}, OutputKey: "summary"},
	}
}

func validEdges() []domain.Edge {
	return []domain.Edge{
		{From: "prep", To: "expand"},
		{From: "expand", To: "work"},
		{From: "work", To: "join"},
		{From: "join", To: "finish"},
	}
}

func TestBuild_ValidGraph(t *testing.T) {
	g, err := graph.Build("test", validNodes(), validEdges(), caps)
	require.NoError(t, err)

	assert.Equal(t, "test", g.Name())
	assert.Equal(t, "expand", g.FanOut().ID)
	assert.Equal(t, "join", g.FanIn().ID)
	assert.Equal(t, "prep", g.Entry().ID)
	assert.Equal(t, "finish", g.Terminal().ID)

	chain := g.Chain()
	require.Len(t, chain, 1)
	assert.Equal(t, "work", chain[0].ID)

	// The engine drives prep, expand, finish; the chain and barrier are
	// handled inside the fan-out step.
	var seq []string
	for _, n := range g.Sequence() {
		seq = append(seq, n.ID)
	}
	assert.Equal(t, []string{"prep", "expand", "finish"}, seq)
}

func TestBuild_Defaults(t *testing.T) {
	g, err := graph.Build("", validNodes(), validEdges(), caps)
	require.NoError(t, err)

	assert.Equal(t, "pipeline", g.Name())
	assert.Equal(t, domain.DefaultItemsKey, g.FanOut().ItemsKey, "fan-out items key defaults")
	assert.Equal(t, "results", g.FanIn().OutputKey, "fan-in output key defaults")
}

func TestBuild_MergePolicies(t *testing.T) {
	g, err := graph.Build("test", validNodes(), validEdges(), caps,
		graph.WithStateKey("topic", domain.MergeOverwrite))
	require.NoError(t, err)

	policies := g.Policies()
	assert.Equal(t, domain.MergeOrderedAppend, policies["results"], "fan-in key is ordered-append")
	assert.Equal(t, domain.MergeOverwrite, policies["notes"])
	assert.Equal(t, domain.MergeOverwrite, policies["summary"])
	assert.Equal(t, domain.MergeOverwrite, policies["topic"])
}

func TestBuild_CollectsAllProblems(t *testing.T) {
	nodes := []domain.Node{
		{ID: "a", Kind: domain.KindSequential, Capability: "prep"},
		{ID: "a", Kind: domain.KindSequential, Capability: "prep"},
		{ID: "b", Kind: "mystery", Capability: "prep"},
	}
	_, err := graph.Build("bad", nodes, nil, caps)

	var valErr *graph.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.GreaterOrEqual(t, len(valErr.Problems), 3, "one build should report every finding: %v", valErr.Problems)
}

func TestBuild_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge)
		want   string
	}{
		{
			name: "missing fan-out",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[1].Kind = domain.KindSequential
				return nodes, edges
			},
			want: "fan-out",
		},
		{
			name: "two fan-outs",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[2].Kind = domain.KindFanOut
				return nodes, edges
			},
			want: "more than one fan-out",
		},
		{
			name: "fan-in with capability",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[3].Capability = "work"
				return nodes, edges
			},
			want: "must not declare a capability",
		},
		{
			name: "unregistered capability",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[0].Capability = "nope"
				return nodes, edges
			},
			want: "unregistered capability",
		},
		{
			name: "fallback on fan-out",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[1].Fallback = "backup"
				return nodes, edges
			},
			want: "must not declare a fallback",
		},
		{
			name: "fallback on item stage",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[2].Fallback = "backup"
				return nodes, edges
			},
			want: "must not declare a fallback",
		},
		{
			name: "self-loop",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				return nodes, append(edges, domain.Edge{From: "prep", To: "prep"})
			},
			want: "self-loop",
		},
		{
			name: "dangling edge",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				return nodes, append(edges, domain.Edge{From: "prep", To: "ghost"})
			},
			want: "unknown node",
		},
		{
			name: "cycle",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				return nodes, append(edges, domain.Edge{From: "finish", To: "prep"})
			},
			want: "cycle",
		},
		{
			name: "fan-out adjacent to fan-in",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				trimmed := append(nodes[:2:2], nodes[3], nodes[4])
				return trimmed, []domain.Edge{
					{From: "prep", To: "expand"},
					{From: "expand", To: "join"},
					{From: "join", To: "finish"},
				}
			},
			want: "at least one item stage",
		},
		{
			name: "terminal has wrong kind",
			mutate: func(nodes []domain.Node, edges []domain.Edge) ([]domain.Node, []domain.Edge) {
				nodes[4].Kind = domain.KindSequential
				return nodes, edges
			},
			want: "must have kind",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nodes, edges := tc.mutate(validNodes(), validEdges())
			_, err := graph.Build("bad", nodes, edges, caps)
			var valErr *graph.ValidationError
			require.ErrorAs(t, err, &valErr, "expected a validation error")
			assert.Contains(t, valErr.Error(), tc.want)
		})
	}
}

func TestBuild_BranchingChainRejected(t *testing.T) {
	nodes := append(validNodes(),
		domain.Node{ID: "side", Kind: domain.KindSequential, Capability: "polish"})
	edges := append(validEdges(),
		domain.Edge{From: "work", To: "side"},
		domain.Edge{From: "side", To: "join"})

	_, err := graph.Build("bad", nodes, edges, caps)
	var valErr *graph.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestBuild_LongerChain(t *testing.T) {
	nodes := validNodes()
	nodes = append(nodes[:3:3],
		domain.Node{ID: "polish", Kind: domain.KindSequential, Capability: "polish"},
		nodes[3], nodes[4])
	edges := []domain.Edge{
		{From: "prep", To: "expand"},
		{From: "expand", To: "work"},
		{From: "work", To: "polish"},
		{From: "polish", To: "join"},
		{From: "join", To: "finish"},
	}

	g, err := graph.Build("test", nodes, edges, caps)
	require.NoError(t, err)

	var chain []string
	for _, n := range g.Chain() {
		chain = append(chain, n.ID)
	}
	assert.Equal(t, []string{"work", "polish"}, chain)
}

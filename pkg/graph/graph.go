// Package graph builds and validates pipeline graph definitions.
//
// A Graph is immutable once built. All structural problems (duplicate ids,
// dangling edges, cycles, a malformed fan-out/fan-in pair, unregistered
// capabilities) are reported by Build as a *ValidationError; the runtime
// never re-validates at execution time.
package graph

import (
	"fmt"
	"strings"

	"github.com/pergolab/pergola/pkg/domain"
)

// Resolver answers whether a capability name is registered.
// *registry.Registry satisfies it.
type Resolver interface {
	Has(name string) bool
}

// ValidationError aggregates everything wrong with a graph definition so the
// author fixes one build, not one problem per build.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s", strings.Join(e.Problems, "; "))
}

// Graph is a validated pipeline definition.
type Graph struct {
	name     string
	nodes    map[string]*domain.Node
	edges    []domain.Edge
	order    []string // full topological order
	sequence []string // order minus the item chain and the fan-in barrier
	chain    []string // nodes strictly between fan-out and fan-in, in order
	fanOut   string
	fanIn    string
	entry    string
	terminal string
	policies map[string]domain.MergePolicy
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Node returns a node by id.
func (g *Graph) Node(id string) (*domain.Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in topological order.
func (g *Graph) Nodes() []domain.Node {
	out := make([]domain.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []domain.Edge {
	out := make([]domain.Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Sequence returns the nodes the engine drives directly, in topological
// order: everything except the item chain (executed per work item by the
// dispatcher) and the fan-in barrier (handled as part of the fan-out step).
func (g *Graph) Sequence() []*domain.Node {
	out := make([]*domain.Node, 0, len(g.sequence))
	for _, id := range g.sequence {
		out = append(out, g.nodes[id])
	}
	return out
}

// Chain returns the per-item stages between fan-out and fan-in, in order.
func (g *Graph) Chain() []*domain.Node {
	out := make([]*domain.Node, 0, len(g.chain))
	for _, id := range g.chain {
		out = append(out, g.nodes[id])
	}
	return out
}

// FanOut returns the fan-out node.
func (g *Graph) FanOut() *domain.Node { return g.nodes[g.fanOut] }

// FanIn returns the fan-in node.
func (g *Graph) FanIn() *domain.Node { return g.nodes[g.fanIn] }

// Entry returns the entry node (no incoming edges).
func (g *Graph) Entry() *domain.Node { return g.nodes[g.entry] }

// Terminal returns the terminal node (no outgoing edges).
func (g *Graph) Terminal() *domain.Node { return g.nodes[g.terminal] }

// Policies returns the merge policy for every state key the graph writes,
// fixed at build time.
func (g *Graph) Policies() map[string]domain.MergePolicy {
	out := make(map[string]domain.MergePolicy, len(g.policies))
	for k, v := range g.policies {
		out[k] = v
	}
	return out
}

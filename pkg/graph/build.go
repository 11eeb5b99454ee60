package graph

import (
	"fmt"
	"sort"

	"github.com/pergolab/pergola/pkg/domain"
)

// DefaultName is the graph name used when a definition declares none.
const DefaultName = "pipeline"

// Option configures Build.
type Option func(*buildConfig)

type buildConfig struct {
	stateKeys map[string]domain.MergePolicy
}

// WithStateKey declares an extra state key and its merge policy, for keys
// written by the host (initial state) rather than by a node.
func WithStateKey(key string, policy domain.MergePolicy) Option {
	return func(c *buildConfig) {
		c.stateKeys[key] = policy
	}
}

// Build validates the definition and returns an executable Graph.
// All findings are collected into a single *ValidationError.
func Build(name string, nodes []domain.Node, edges []domain.Edge, caps Resolver, opts ...Option) (*Graph, error) {
	cfg := &buildConfig{stateKeys: make(map[string]domain.MergePolicy)}
	for _, opt := range opts {
		opt(cfg)
	}
	if name == "" {
		name = DefaultName
	}

	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(nodes) == 0 {
		return nil, &ValidationError{Problems: []string{"graph has no nodes"}}
	}

	g := &Graph{
		name:     name,
		nodes:    make(map[string]*domain.Node, len(nodes)),
		policies: make(map[string]domain.MergePolicy),
	}

	// Nodes: unique ids, known kinds, fan-out/fan-in cardinality.
	for i := range nodes {
		n := nodes[i] // copy; the Graph owns its nodes
		if n.ID == "" {
			fail("node #%d has an empty id", i)
			continue
		}
		if _, dup := g.nodes[n.ID]; dup {
			fail("duplicate node id %q", n.ID)
			continue
		}
		switch n.Kind {
		case domain.KindSequential, domain.KindTerminal:
		case domain.KindFanOut:
			if g.fanOut != "" {
				fail("more than one fan-out node (%q and %q)", g.fanOut, n.ID)
			}
			g.fanOut = n.ID
			if n.ItemsKey == "" {
				n.ItemsKey = domain.DefaultItemsKey
			}
		case domain.KindFanIn:
			if g.fanIn != "" {
				fail("more than one fan-in node (%q and %q)", g.fanIn, n.ID)
			}
			g.fanIn = n.ID
			if n.OutputKey == "" {
				n.OutputKey = "results"
			}
		default:
			fail("node %q has unknown kind %q", n.ID, n.Kind)
		}
		g.nodes[n.ID] = &n
	}
	if g.fanOut == "" {
		fail("graph needs exactly one fan-out node, found none")
	}
	if g.fanIn == "" {
		fail("graph needs exactly one fan-in node, found none")
	}

	// Capability bindings. Fan-in is a pure barrier and must not carry one.
	for _, id := range sortedIDs(g.nodes) {
		n := g.nodes[id]
		if n.Kind == domain.KindFanIn {
			if n.Capability != "" {
				fail("fan-in node %q must not declare a capability", id)
			}
			if n.Fallback != "" {
				fail("fan-in node %q must not declare a fallback", id)
			}
			continue
		}
		if n.Capability == "" {
			fail("node %q declares no capability", id)
		} else if !caps.Has(n.Capability) {
			fail("node %q references unregistered capability %q", id, n.Capability)
		}
		if n.Fallback != "" {
			if !caps.Has(n.Fallback) {
				fail("node %q references unregistered fallback %q", id, n.Fallback)
			}
			if n.Kind == domain.KindFanOut {
				fail("fan-out node %q must not declare a fallback", id)
			}
		}
	}

	// Edges: known endpoints, no self-loops, no duplicates.
	succ := make(map[string][]string)
	indeg := make(map[string]int)
	seen := make(map[domain.Edge]bool)
	for _, e := range edges {
		if _, ok := g.nodes[e.From]; !ok {
			fail("edge %s->%s references unknown node %q", e.From, e.To, e.From)
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			fail("edge %s->%s references unknown node %q", e.From, e.To, e.To)
			continue
		}
		if e.From == e.To {
			fail("edge %s->%s is a self-loop", e.From, e.To)
			continue
		}
		if seen[e] {
			fail("duplicate edge %s->%s", e.From, e.To)
			continue
		}
		seen[e] = true
		g.edges = append(g.edges, e)
		succ[e.From] = append(succ[e.From], e.To)
		indeg[e.To]++
	}

	if len(problems) > 0 {
		// Structure is already broken; topology checks would only cascade.
		return nil, &ValidationError{Problems: problems}
	}

	// Topological order (stable: ready nodes processed in lexical order).
	ready := make([]string, 0, len(g.nodes))
	for _, id := range sortedIDs(g.nodes) {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	remaining := make(map[string]int, len(indeg))
	for id, d := range indeg {
		remaining[id] = d
	}
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		g.order = append(g.order, id)
		for _, next := range succ[id] {
			remaining[next]--
			if remaining[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(g.order) != len(g.nodes) {
		fail("graph contains a cycle")
		return nil, &ValidationError{Problems: problems}
	}

	// Entry and terminal: exactly one of each.
	var entries, terminals []string
	for _, id := range g.order {
		if indeg[id] == 0 {
			entries = append(entries, id)
		}
		if len(succ[id]) == 0 {
			terminals = append(terminals, id)
		}
	}
	if len(entries) != 1 {
		fail("graph needs exactly one entry node, found %d (%v)", len(entries), entries)
	} else {
		g.entry = entries[0]
	}
	if len(terminals) != 1 {
		fail("graph needs exactly one terminal node, found %d (%v)", len(terminals), terminals)
	} else {
		g.terminal = terminals[0]
		if g.nodes[g.terminal].Kind != domain.KindTerminal {
			fail("last node %q must have kind %q, has %q", g.terminal, domain.KindTerminal, g.nodes[g.terminal].Kind)
		}
	}
	for _, id := range g.order {
		if g.nodes[id].Kind == domain.KindTerminal && len(succ[id]) > 0 {
			fail("terminal node %q has outgoing edges", id)
		}
	}

	// The item chain: every forward path from fan-out must run through fan-in
	// before any terminal node. Enforced as a simple path fan-out -> stages ->
	// fan-in, so items flow through a well-defined stage list.
	g.chain = chainBetween(g, succ, indeg, fail)

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	// Merge policies are fixed now, never inferred at run time.
	for k, p := range cfg.stateKeys {
		g.policies[k] = p
	}
	for _, id := range g.order {
		n := g.nodes[id]
		if n.OutputKey == "" {
			continue
		}
		want := domain.MergeOverwrite
		if n.Kind == domain.KindFanIn {
			want = domain.MergeOrderedAppend
		}
		if have, ok := g.policies[n.OutputKey]; ok && have != want {
			fail("state key %q declared with conflicting merge policies (%s and %s)", n.OutputKey, have, want)
			continue
		}
		g.policies[n.OutputKey] = want
	}

	// Sequence: what the engine drives directly.
	inChain := make(map[string]bool, len(g.chain))
	for _, id := range g.chain {
		inChain[id] = true
	}
	for _, id := range g.order {
		if inChain[id] || id == g.fanIn {
			continue
		}
		g.sequence = append(g.sequence, id)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return g, nil
}

// chainBetween walks the simple path from fan-out to fan-in and reports any
// deviation: branches, joins from outside, non-sequential stages, or a path
// that reaches a dead end before the barrier.
func chainBetween(g *Graph, succ map[string][]string, indeg map[string]int, fail func(string, ...any)) []string {
	if len(succ[g.fanOut]) != 1 {
		fail("fan-out node %q must have exactly one outgoing edge, has %d", g.fanOut, len(succ[g.fanOut]))
		return nil
	}
	if indeg[g.fanIn] != 1 {
		fail("fan-in node %q must have exactly one incoming edge, has %d", g.fanIn, indeg[g.fanIn])
		return nil
	}

	var chain []string
	cur := succ[g.fanOut][0]
	for cur != g.fanIn {
		n := g.nodes[cur]
		if n.Kind != domain.KindSequential {
			fail("node %q between fan-out and fan-in must be sequential, has kind %q", cur, n.Kind)
			return nil
		}
		if indeg[cur] != 1 || len(succ[cur]) != 1 {
			fail("item stage %q must have exactly one incoming and one outgoing edge", cur)
			return nil
		}
		if n.Fallback != "" {
			fail("item stage %q must not declare a fallback", cur)
			return nil
		}
		chain = append(chain, cur)
		if len(chain) > len(g.nodes) {
			// Cycles are caught earlier; this guards the walk regardless.
			fail("item chain from %q never reaches fan-in %q", g.fanOut, g.fanIn)
			return nil
		}
		cur = succ[cur][0]
	}
	if len(chain) == 0 {
		fail("fan-out %q connects directly to fan-in %q; at least one item stage is required", g.fanOut, g.fanIn)
	}
	return chain
}

func sortedIDs(nodes map[string]*domain.Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

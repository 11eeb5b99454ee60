// Package yamlgraph loads pipeline definitions (nodes, edges, state keys,
// per-node policies and capability command bindings) from a single YAML
// document.
package yamlgraph

import (
	"bytes"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/graph"
)

// Definition is the parsed pipeline document, still unvalidated. Graph
// validation happens in graph.Build, not here; this layer only deals with
// shape and syntax.
type Definition struct {
	Name        string `yaml:"name"`
	Concurrency int    `yaml:"concurrency"`

	// Defaults applies to nodes without an entry in Policies.
	Defaults *PolicySpec           `yaml:"defaults"`
	Policies map[string]PolicySpec `yaml:"policies"`

	// State declares extra keys and their merge policies for values the host
	// seeds before the run ("overwrite" or "ordered-append").
	State map[string]string `yaml:"state"`

	// Nodes are decoded loosely and mapped onto domain.Node via mapstructure,
	// so unknown fields surface as errors instead of being dropped.
	Nodes []map[string]any `yaml:"nodes"`
	Edges []EdgeSpec       `yaml:"edges"`

	// Capabilities binds names to external commands (see adapters/process).
	Capabilities []CommandSpec `yaml:"capabilities"`
}

// EdgeSpec is one directed edge of the pipeline.
type EdgeSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CommandSpec binds a capability name to an external command.
type CommandSpec struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Parse decodes a pipeline document. Unknown document keys are errors so a
// misspelled field cannot silently fall back to a default.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parsing pipeline document: %w", err)
	}
	return &def, nil
}

// LoadFile reads and parses a pipeline document from disk.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	return Parse(data)
}

// GraphInputs converts the document into graph.Build arguments.
func (d *Definition) GraphInputs() (string, []domain.Node, []domain.Edge, []graph.Option, error) {
	nodes := make([]domain.Node, 0, len(d.Nodes))
	for i, raw := range d.Nodes {
		var n domain.Node
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &n,
			ErrorUnused: true,
			TagName:     "mapstructure",
		})
		if err != nil {
			return "", nil, nil, nil, fmt.Errorf("building node decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return "", nil, nil, nil, fmt.Errorf("node #%d: %w", i, err)
		}
		nodes = append(nodes, n)
	}

	edges := make([]domain.Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		edges = append(edges, domain.Edge{From: e.From, To: e.To})
	}

	var opts []graph.Option
	for key, policy := range d.State {
		switch domain.MergePolicy(policy) {
		case domain.MergeOverwrite, domain.MergeOrderedAppend:
			opts = append(opts, graph.WithStateKey(key, domain.MergePolicy(policy)))
		default:
			return "", nil, nil, nil, fmt.Errorf("state key %q has unknown merge policy %q", key, policy)
		}
	}

	return d.Name, nodes, edges, opts, nil
}

// NodePolicies converts the per-node policy specs. The second return value
// is the default policy, or nil when the document declares none.
func (d *Definition) NodePolicies() (map[string]domain.Policy, *domain.Policy, error) {
	policies := make(map[string]domain.Policy, len(d.Policies))
	for nodeID, spec := range d.Policies {
		p, err := spec.ToPolicy()
		if err != nil {
			return nil, nil, fmt.Errorf("policy for node %q: %w", nodeID, err)
		}
		policies[nodeID] = p
	}

	if d.Defaults == nil {
		return policies, nil, nil
	}
	def, err := d.Defaults.ToPolicy()
	if err != nil {
		return nil, nil, fmt.Errorf("default policy: %w", err)
	}
	return policies, &def, nil
}

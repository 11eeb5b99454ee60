package domain

// NodeKind constants define the control flow role of a node.
const (
	// KindSequential invokes its capability once on the engine's own
	// execution context and merges the output with overwrite semantics.
	KindSequential = "sequential"
	// KindFanOut invokes its capability once, then expands the declared items
	// of the output into a WorkBatch for parallel execution.
	KindFanOut = "fan-out"
	// KindFanIn is the barrier where the batch converges. It carries no
	// capability; its output key receives the ordered item outcomes.
	KindFanIn = "fan-in"
	// KindTerminal behaves like a sequential node and ends the pipeline.
	KindTerminal = "terminal"
)

// Node represents one step of the pipeline graph.
type Node struct {
	ID   string `json:"id" yaml:"id" mapstructure:"id"`
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`

	// Capability is the registered name invoked by this node.
	// Empty for fan-in nodes, required everywhere else.
	Capability string `json:"capability,omitempty" yaml:"capability,omitempty" mapstructure:"capability"`

	// Fallback names a capability consulted once when the primary exhausts
	// its policy on a sequential or terminal node. Batch items never fall
	// back; isolation already contains them.
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`

	// Inputs lists the state keys projected into the capability input.
	// A missing key aborts the run; suffix a key with '?' to mark it optional.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty" mapstructure:"inputs"`

	// OutputKey is the state key the node's output merges into. Sequential,
	// fan-out and terminal nodes merge with overwrite; the fan-in node's key
	// holds the ordered item outcomes (ordered-append). Empty means the
	// output is discarded (fan-out nodes still expand their items).
	OutputKey string `json:"output_key,omitempty" yaml:"output_key,omitempty" mapstructure:"output_key"`

	// ItemsKey names the field of a fan-out capability's output that holds
	// the sub-task payload list. Defaults to "items".
	ItemsKey string `json:"items_key,omitempty" yaml:"items_key,omitempty" mapstructure:"items_key"`
}

// Edge is a directed connection between two nodes.
type Edge struct {
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to" yaml:"to" mapstructure:"to"`
}

// DefaultItemsKey is the fan-out payload field used when ItemsKey is unset.
const DefaultItemsKey = "items"

package domain

// MergePolicy is the rule for combining a new value into the run state under
// a given key. Policies are fixed when the graph is built and never change
// during a run.
type MergePolicy string

const (
	// MergeOverwrite replaces the previous value (last writer wins). Used by
	// sequential, fan-out and terminal nodes.
	MergeOverwrite MergePolicy = "overwrite"
	// MergeOrderedAppend combines indexed contributions into a sequence
	// sorted by sequence index, independent of arrival order. Used for the
	// fan-in result key.
	MergeOrderedAppend MergePolicy = "ordered-append"
)

// Indexed is a contribution to an ordered-append key. The index is the work
// item's sequence index assigned at fan-out time.
type Indexed struct {
	Index int `json:"index"`
	Value any `json:"value"`
}

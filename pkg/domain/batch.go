package domain

// WorkItem is one unit of parallel work expanded at the fan-out node.
// The sequence index is assigned at expansion time and never changes; it is
// what makes the final aggregation order deterministic.
type WorkItem struct {
	Index   int            `json:"index"`
	Payload map[string]any `json:"payload"`
}

// WorkBatch is the full set of work items created atomically from one
// fan-out evaluation. Its size is fixed once created.
type WorkBatch struct {
	Items []WorkItem `json:"items"`
}

// NewWorkBatch assigns sequence indexes to the given payloads in order.
func NewWorkBatch(payloads []map[string]any) WorkBatch {
	items := make([]WorkItem, len(payloads))
	for i, p := range payloads {
		items[i] = WorkItem{Index: i, Payload: p}
	}
	return WorkBatch{Items: items}
}

// Size returns the number of items in the batch.
func (b WorkBatch) Size() int { return len(b.Items) }

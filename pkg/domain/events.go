package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventRunEnd    EventType = "run_end"
	EventNodeEnter EventType = "node_enter"
	EventNodeLeave EventType = "node_leave"
	EventItemStart EventType = "item_start"
	EventItemEnd   EventType = "item_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// RunEvent marks the start or end of a run.
type RunEvent struct {
	EventBase
	Graph  string  `json:"graph"`
	Report *Report `json:"report,omitempty"` // set on run_end when a report exists
	Err    string  `json:"error,omitempty"`
}

// NodeEvent represents entry to or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeKind string        `json:"node_kind"`
	Duration time.Duration `json:"duration_ns,omitempty"` // node_leave only
	Err      string        `json:"error,omitempty"`
}

// ItemEvent represents the start or terminal outcome of a work item.
type ItemEvent struct {
	EventBase
	NodeID  string       `json:"node_id"` // the fan-out node
	Index   int          `json:"index"`
	Outcome *ItemOutcome `json:"outcome,omitempty"` // item_end only
}

// LifecycleHooks defines callbacks for engine observability. Nil hooks are
// skipped. Item hooks may be invoked concurrently from many workers.
type LifecycleHooks struct {
	OnRunStart  func(context.Context, *RunEvent)
	OnRunEnd    func(context.Context, *RunEvent)
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnItemStart func(context.Context, *ItemEvent)
	OnItemEnd   func(context.Context, *ItemEvent)
}

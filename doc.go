/*
Package pergola is a deterministic pipeline engine for fan-out/fan-in
workloads: a fixed sequence of stages that, at one point, expands a batch of
items, runs them concurrently with a bounded worker pool, and re-joins them
into a single ordered result.

It separates the pipeline shape (Graph) from the work itself (Capabilities)
and from failure handling (Policies). The engine manages expansion,
scheduling, retries, timeouts, and aggregation; your application ("Host")
provides the capability functions and decides what to do with the report.

# Concept

A pipeline is a directed acyclic graph with exactly one fan-out node and one
fan-in node. Sequential nodes before the fan-out prepare shared state; the
fan-out's capability produces a list of items; each item flows through a
chain of stages between fan-out and fan-in; the fan-in is a barrier that
merges every item outcome back into state, ordered by the item's original
index regardless of completion order. Item failures are isolated: one bad
item never aborts its siblings or the run.

# Key Properties

  - Deterministic aggregation: results are ordered by item index, so
    concurrent runs of the same input produce the same report.
  - Failure isolation: per-item retry, backoff, and timeout policies with
    explicit fatal classification.
  - Bounded concurrency: at most k items execute at once.
  - Graceful degradation: a run deadline after the barrier keeps the partial
    aggregation and marks the report instead of discarding work.

# Usage

Build a graph, register capabilities, and submit a run:

	package main

	import (
		"context"
		"log"

		"github.com/pergolab/pergola"
		"github.com/pergolab/pergola/pkg/registry"
	)

	func main() {
		reg := registry.New()
		// reg.Register("plan", ...), reg.Register("draft", ...), etc.

		pipe, err := pergola.Load("./pipeline.yaml", reg)
		if err != nil {
			log.Fatal(err)
		}

		report, err := pipe.Submit(context.Background(), map[string]any{
			"topic": "soil chemistry",
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("run %s: %d/%d items succeeded", report.RunID, report.Succeeded, report.Total)
	}
*/
package pergola

/*
Package domain contains the core data model of the Pergola engine: nodes and
edges of the pipeline graph, capability signatures and structured failures,
error policies, work batches, merge policies, and the final Report.

The package is dependency-light on purpose. Everything here is plain data (or
small functions over plain data) so that the runtime, the adapters, and host
applications can all share the same vocabulary without import cycles.
*/
package domain

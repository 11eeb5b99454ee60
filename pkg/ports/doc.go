/*
Package ports defines the interfaces between the engine core and the outside
world. Adapters (Redis, in-memory, HTTP) implement these contracts; the core
never depends on a concrete backend.
*/
package ports

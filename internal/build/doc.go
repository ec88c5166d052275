// Package build orchestrates multi-item builds.
//
// Each item is a Task with a registered Declaration. Building an item runs
// its declaration, fingerprints the resulting definition and compares it
// with the cache: a match returns the cached remote id without any remote
// call; otherwise the item type is upserted and its fields synced by the
// engine, and the cache entry is written after the sync succeeds.
//
// Declarations reach other items through a DependencyContext. A request
// builds the dependency on demand (or waits for the build already in
// flight) and returns its remote id. Waits are tracked in a per-run
// wait-for graph, so mutually dependent declarations fail with a
// DependencyCycleError instead of deadlocking.
//
// All memoization is scoped to a Run, created by Orchestrator.NewRun and
// released by Run.Close, which also flushes the cache.
package build

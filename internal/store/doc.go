// Package store persists the build cache: a map from item key
// ("<kind>:<name>") to the remote id and fingerprint of its last
// successful build.
//
// Two adapters implement Cache. Store is backed by SQLite and is loaded
// once when opened; Set only stages entries in memory and Flush writes them
// in a single transaction. Memory keeps everything in process and is used
// by tests and dry runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Rows are scoped by target, the remote base URL and environment, so a
// build against one environment never reuses ids created in another.
// OpenReadOnly loads a cache for dry runs without touching the file.
//
// Rows record the fingerprint domain they were computed under. Rows from
// another domain are ignored on load, so changing how fingerprints are
// computed invalidates the whole cache instead of producing false hits.
package store

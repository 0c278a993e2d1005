// Package store provides the SQLite-backed operation log for weft
// containers.
//
// The log is append-only:
//   - Containers: one row per container id with its kind
//   - Ops: every integrated operation, keyed by (container, client, counter)
//
// # Ordering
//
// Rows carry a seq from the engine's logical clock, never a timestamp.
// ReadOps returns rows ORDER BY seq, client, counter, which is a causal
// order because the engine only persists ops after integrating them.
//
// # Idempotency
//
// Writes use ON CONFLICT DO NOTHING. Writing the same op twice, for example
// after a crash between integration and persistence, is harmless.
//
// # Encoding
//
// List content is stored as canonical value JSON. Text content is a plain
// JSON string, left unnormalized so element counts survive a round trip.
// Parents and targets are JSON arrays. Client ids are stored as decimal
// text because they use the full uint64 range.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: ops must reference a known container
package store

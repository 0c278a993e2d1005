// Package engine implements the weft replica loop.
//
// The engine owns the containers of one replica. Remote ops and local edits
// arrive as events and are applied by a single goroutine, so a container
// never sees two writers.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// 1. Events enqueued to FIFO queue (imports or local edits)
// 2. Engine.Run() dequeues events one at a time
// 3. processEvent() routes to the handler
// 4. The handler integrates ops into the container
// 5. Integrated ops are written to SQLite (single writer), effects go to the sink
//
// Out-of-order Delivery:
// An op whose parents, origin or delete targets are unknown is parked in
// the container's pending buffer. After every successful integration the
// buffer is retried until no op makes progress, so ops may arrive in any
// order as long as they all arrive.
//
// Idempotency:
// Ops already covered by the container's version are skipped and counted as
// duplicates. Overlapping ops are trimmed to their unknown suffix. The log
// write uses ON CONFLICT DO NOTHING, so replaying a delivery is harmless
// at both layers.
//
// Logical Clock:
// Every persisted op is stamped with a seq from Clock.Next(). Replay reads
// the log in seq order, which is a causal order because ops are persisted
// only after integration. NEVER use wall-clock timestamps for ordering.
package engine

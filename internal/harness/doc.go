// Package harness runs convergence scenarios against real replica engines.
//
// Each replica in a scenario is an engine.Engine with its own in-memory op
// log, driven through Enqueue and Reply exactly like production callers.
// The harness keeps a rendered view per replica built only from delivered
// effects and checks it against the container after every step.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: concurrent-insert-at-start
//	description: "Two replicas insert at the document start concurrently"
//	container: doc
//	kind: text
//	replicas: [1, 2]
//	steps:
//	  - replica: 1
//	    insert: { pos: 0, text: "ab" }
//	  - replica: 2
//	    insert: { pos: 0, text: "x" }
//	  - sync: { from: 1, to: 2 }
//	  - sync: { from: 2, to: 1, order: reverse }
//	assertions:
//	  - type: converged
//	  - type: content
//	    replica: 1
//	    text: "xab"
//
// # Delivery Orders
//
// A sync step exports what the target is missing and delivers it:
//   - causal (default): one import event in export order
//   - shuffle: one import event in a random order chosen by seed; ops that
//     arrive ahead of their dependencies wait in the pending buffer
//   - reverse: one import event per op, newest first, which exercises the
//     engine's pending buffer
//
// # Assertion Types
//
//   - converged: every replica has the same version and content
//   - content: a replica's text or list values
//   - version: a replica's version vector, e.g. "{1:2, 2:1}"
//   - critical_version: the critical ids of a replica's current version
//   - pending: the number of ops parked on a replica
//   - replay: rebuilding from the replica's op log gives the live state
//   - invariants: every replica passes CheckInvariants
//
// # Golden Traces
//
// RunWithGolden stores the step trace (ops and effects per step) as
// canonical JSON under testdata/golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness

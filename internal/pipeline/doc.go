// Package pipeline runs ordered lists of filters against a threaded-through
// data structure.
//
// Two-Phase Runs:
// Preflight asks every filter for the actions it would take and applies them
// in preflight mode, so the whole chain is validated against shape and type
// metadata without allocating payloads. Execute repeats the walk in execute
// mode and lets each filter compute real values.
//
// Snapshots:
// Each node owns the structure it produced on its last successful preflight
// and execute. The next node always receives a copy, never the snapshot
// itself. A run can therefore resume at node i from node i-1's snapshot
// without re-running the nodes before it.
//
// Failure:
// A run stops at the first node that reports an error and returns a
// *FaultError for it. Earlier nodes keep their results. A cancelled run
// returns ErrCancelled and is not a fault.
//
// Renames:
// When a node's created paths change between two preflights and a changed
// pair differs in exactly one segment, the path arguments of every later
// node are rewritten to follow it. Any path that could pair with more than
// one candidate is left alone.
package pipeline

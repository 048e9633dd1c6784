// Package crdt implements conflict-free replicated data types.
//
// Each type exposes a Merge that is commutative, associative and
// idempotent, so replicas converge to the same value regardless of the
// order or repetition of merges.
//
// The types are not safe for concurrent use; callers serialize access.
package crdt

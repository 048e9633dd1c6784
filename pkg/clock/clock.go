// Package clock implements vector clocks for tracking causal history
// across replicas.
//
// Each node only ever increments its own entry. Merging two clocks takes
// the pointwise maximum per node, so a merged clock never loses causal
// history. Two clocks where neither happens before the other are
// concurrent, which is the trigger for conflict resolution.
package clock

import "time"

// Relation describes how two vector clocks are causally related.
type Relation int

const (
	// Before indicates the first clock happens before the second.
	Before Relation = iota
	// After indicates the second clock happens before the first.
	After
	// Equal indicates the clocks are identical.
	Equal
	// Concurrent indicates neither clock happens before the other.
	Concurrent
)

func (r Relation) String() string {
	switch r {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Vector is a vector clock: a mapping from node ID to a monotonically
// increasing counter, plus the wall time of the last local update.
type Vector struct {
	Counters  map[string]uint64 `json:"counters" codec:"counters"`
	Timestamp time.Time         `json:"timestamp" codec:"timestamp"`
}

// New creates an empty vector clock.
func New() Vector {
	return Vector{
		Counters: make(map[string]uint64),
	}
}

// Increment bumps the counter for the given node and updates the
// timestamp. A node must only ever increment its own entry.
func (v *Vector) Increment(nodeID string) {
	if v.Counters == nil {
		v.Counters = make(map[string]uint64)
	}
	v.Counters[nodeID]++
	v.Timestamp = time.Now()
}

// Counter returns the counter for the given node, or zero if the node has
// no entry.
func (v Vector) Counter(nodeID string) uint64 {
	return v.Counters[nodeID]
}

// Merge merges other into v, taking the pointwise maximum per node. An
// entry never decreases.
func (v *Vector) Merge(other Vector) {
	if v.Counters == nil {
		v.Counters = make(map[string]uint64)
	}
	for nodeID, counter := range other.Counters {
		if counter > v.Counters[nodeID] {
			v.Counters[nodeID] = counter
		}
	}
	if other.Timestamp.After(v.Timestamp) {
		v.Timestamp = other.Timestamp
	}
}

// Clone returns a deep copy of the clock.
func (v Vector) Clone() Vector {
	counters := make(map[string]uint64, len(v.Counters))
	for nodeID, counter := range v.Counters {
		counters[nodeID] = counter
	}
	return Vector{
		Counters:  counters,
		Timestamp: v.Timestamp,
	}
}

// Compare returns the causal relation of v to other.
func (v Vector) Compare(other Vector) Relation {
	vLess := false
	otherLess := false

	for nodeID, counter := range v.Counters {
		otherCounter := other.Counters[nodeID]
		if counter < otherCounter {
			vLess = true
		} else if counter > otherCounter {
			otherLess = true
		}
	}
	for nodeID, otherCounter := range other.Counters {
		if _, ok := v.Counters[nodeID]; ok {
			// Already compared above.
			continue
		}
		if otherCounter > 0 {
			vLess = true
		}
	}

	switch {
	case vLess && otherLess:
		return Concurrent
	case vLess:
		return Before
	case otherLess:
		return After
	default:
		return Equal
	}
}

// HappensBefore returns whether v causally precedes other: every entry of
// v is <= the corresponding entry of other, and at least one is strictly
// less.
func (v Vector) HappensBefore(other Vector) bool {
	return v.Compare(other) == Before
}

// ConcurrentWith returns whether neither clock happens before the other.
func (v Vector) ConcurrentWith(other Vector) bool {
	return v.Compare(other) == Concurrent
}

package crdt

import "time"

// LWWRegister is a last-writer-wins register. Set applies only if the
// given timestamp is not older than the current one. On exactly equal
// timestamps the write from the lexicographically smaller origin node
// wins, which keeps the outcome deterministic across replicas.
type LWWRegister[T any] struct {
	Val        T         `json:"value" codec:"value"`
	Timestamp  time.Time `json:"timestamp" codec:"timestamp"`
	OriginNode string    `json:"origin_node" codec:"origin_node"`
}

func NewLWWRegister[T any]() *LWWRegister[T] {
	return &LWWRegister[T]{}
}

// Set updates the register if the write at the given timestamp from the
// given origin wins over the current value. Returns whether the value was
// applied.
func (r *LWWRegister[T]) Set(value T, timestamp time.Time, originNode string) bool {
	if !r.wins(timestamp, originNode) {
		return false
	}
	r.Val = value
	r.Timestamp = timestamp
	r.OriginNode = originNode
	return true
}

// Value returns the current value.
func (r *LWWRegister[T]) Value() T {
	return r.Val
}

// Merge keeps the entry with the larger timestamp, breaking ties by
// origin node.
func (r *LWWRegister[T]) Merge(other *LWWRegister[T]) {
	r.Set(other.Val, other.Timestamp, other.OriginNode)
}

func (r *LWWRegister[T]) wins(timestamp time.Time, originNode string) bool {
	if timestamp.After(r.Timestamp) {
		return true
	}
	if timestamp.Before(r.Timestamp) {
		return false
	}
	// Equal timestamps: smaller origin wins. An unset register always
	// loses ties to a write with an origin.
	if r.OriginNode == "" {
		return originNode != "" || r.Timestamp.IsZero()
	}
	return originNode != "" && originNode < r.OriginNode
}

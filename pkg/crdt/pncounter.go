package crdt

// PNCounter is a counter supporting both increments and decrements,
// implemented as a pair of grow-only counters.
type PNCounter struct {
	Positive *GCounter `json:"positive" codec:"positive"`
	Negative *GCounter `json:"negative" codec:"negative"`
}

func NewPNCounter() *PNCounter {
	return &PNCounter{
		Positive: NewGCounter(),
		Negative: NewGCounter(),
	}
}

// Increment adds one to the given node's positive count.
func (c *PNCounter) Increment(nodeID string) {
	c.Positive.Increment(nodeID)
}

// Decrement adds one to the given node's negative count.
func (c *PNCounter) Decrement(nodeID string) {
	c.Negative.Increment(nodeID)
}

// Value returns the positive sum minus the negative sum.
func (c *PNCounter) Value() int64 {
	return int64(c.Positive.Value()) - int64(c.Negative.Value())
}

// Merge merges other into c by merging both halves.
func (c *PNCounter) Merge(other *PNCounter) {
	c.Positive.Merge(other.Positive)
	c.Negative.Merge(other.Negative)
}

// Clone returns a deep copy of the counter.
func (c *PNCounter) Clone() *PNCounter {
	return &PNCounter{
		Positive: c.Positive.Clone(),
		Negative: c.Negative.Clone(),
	}
}

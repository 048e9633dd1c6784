package crdt

// GCounter is a grow-only counter. Each node tracks its own partial count
// and the counter value is the sum of all partial counts. Merge takes the
// pointwise maximum per node so increments are never lost.
type GCounter struct {
	Counts map[string]uint64 `json:"counts" codec:"counts"`
}

func NewGCounter() *GCounter {
	return &GCounter{
		Counts: make(map[string]uint64),
	}
}

// Increment adds one to the given node's partial count.
func (c *GCounter) Increment(nodeID string) {
	c.Add(nodeID, 1)
}

// Add adds delta to the given node's partial count.
func (c *GCounter) Add(nodeID string, delta uint64) {
	if c.Counts == nil {
		c.Counts = make(map[string]uint64)
	}
	c.Counts[nodeID] += delta
}

// Value returns the sum of all partial counts.
func (c *GCounter) Value() uint64 {
	var sum uint64
	for _, count := range c.Counts {
		sum += count
	}
	return sum
}

// Merge merges other into c, taking the pointwise maximum per node.
func (c *GCounter) Merge(other *GCounter) {
	if c.Counts == nil {
		c.Counts = make(map[string]uint64)
	}
	for nodeID, count := range other.Counts {
		if count > c.Counts[nodeID] {
			c.Counts[nodeID] = count
		}
	}
}

// Clone returns a deep copy of the counter.
func (c *GCounter) Clone() *GCounter {
	clone := NewGCounter()
	for nodeID, count := range c.Counts {
		clone.Counts[nodeID] = count
	}
	return clone
}

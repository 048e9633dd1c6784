package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVector_Increment(t *testing.T) {
	v := New()
	v.Increment("node-1")
	v.Increment("node-1")
	v.Increment("node-2")

	assert.Equal(t, uint64(2), v.Counter("node-1"))
	assert.Equal(t, uint64(1), v.Counter("node-2"))
	assert.Equal(t, uint64(0), v.Counter("node-3"))
	assert.False(t, v.Timestamp.IsZero())
}

func TestVector_Compare(t *testing.T) {
	t.Run("equal", func(t *testing.T) {
		a := New()
		a.Increment("node-1")
		b := a.Clone()

		assert.Equal(t, Equal, a.Compare(b))
		assert.False(t, a.HappensBefore(b))
		assert.False(t, a.ConcurrentWith(b))
	})

	t.Run("before", func(t *testing.T) {
		a := New()
		a.Increment("node-1")

		b := a.Clone()
		b.Increment("node-2")

		assert.Equal(t, Before, a.Compare(b))
		assert.Equal(t, After, b.Compare(a))
		assert.True(t, a.HappensBefore(b))
		assert.False(t, b.HappensBefore(a))
	})

	t.Run("concurrent", func(t *testing.T) {
		a := New()
		a.Increment("node-1")

		b := New()
		b.Increment("node-2")

		assert.Equal(t, Concurrent, a.Compare(b))
		assert.Equal(t, Concurrent, b.Compare(a))
		assert.True(t, a.ConcurrentWith(b))
	})

	t.Run("empty vs incremented", func(t *testing.T) {
		a := New()
		b := New()
		b.Increment("node-1")

		assert.Equal(t, Before, a.Compare(b))
	})
}

func TestVector_Merge(t *testing.T) {
	t.Run("pointwise max", func(t *testing.T) {
		a := New()
		a.Increment("node-1")
		a.Increment("node-1")

		b := New()
		b.Increment("node-1")
		b.Increment("node-2")

		a.Merge(b)

		assert.Equal(t, uint64(2), a.Counter("node-1"))
		assert.Equal(t, uint64(1), a.Counter("node-2"))
	})

	t.Run("never decreases", func(t *testing.T) {
		a := New()
		a.Increment("node-1")
		a.Increment("node-1")
		a.Increment("node-1")

		a.Merge(New())

		assert.Equal(t, uint64(3), a.Counter("node-1"))
	})

	t.Run("merge after happens before equals max", func(t *testing.T) {
		// If a happens before b, merging b into a must give b's entries
		// pointwise maxed with a's.
		a := New()
		a.Increment("node-1")

		b := a.Clone()
		b.Increment("node-2")
		b.Increment("node-2")

		assert.True(t, a.HappensBefore(b))

		a.Merge(b)
		assert.Equal(t, Equal, a.Compare(b))
	})

	t.Run("idempotent", func(t *testing.T) {
		a := New()
		a.Increment("node-1")

		b := New()
		b.Increment("node-2")

		a.Merge(b)
		snapshot := a.Clone()
		a.Merge(b)

		assert.Equal(t, Equal, a.Compare(snapshot))
	})
}

package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testMessage(id string, createdAt time.Time) *Message {
	return &Message{
		ID:        id,
		Type:      TypeHeartbeat,
		Origin:    "node-1",
		TTL:       3,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(time.Minute),
	}
}

func TestMessageBuffer_Record(t *testing.T) {
	t.Run("record once", func(t *testing.T) {
		buffer := newMessageBuffer(10)

		m := testMessage("m1", time.Now())
		assert.True(t, buffer.Record(m))
		assert.False(t, buffer.Record(m))

		assert.True(t, buffer.Seen("m1"))
		assert.False(t, buffer.Seen("m2"))
		assert.Equal(t, 1, buffer.Len())
	})

	t.Run("evict oldest over capacity", func(t *testing.T) {
		buffer := newMessageBuffer(2)

		now := time.Now()
		buffer.Record(testMessage("m1", now.Add(-3*time.Second)))
		buffer.Record(testMessage("m2", now.Add(-2*time.Second)))
		buffer.Record(testMessage("m3", now.Add(-time.Second)))

		assert.Equal(t, 2, buffer.Len())

		_, ok := buffer.Get("m1")
		assert.False(t, ok)
		_, ok = buffer.Get("m3")
		assert.True(t, ok)

		// The evicted message is still seen, so duplicates are
		// suppressed after eviction.
		assert.True(t, buffer.Seen("m1"))
	})
}

func TestMessageBuffer_Pending(t *testing.T) {
	buffer := newMessageBuffer(10)

	low := testMessage("low", time.Now())
	low.Priority = 1
	high := testMessage("high", time.Now())
	high.Priority = 9

	buffer.Enqueue(low)
	buffer.Enqueue(high)

	pending := buffer.TakePending()
	assert.Equal(t, 2, len(pending))
	assert.Equal(t, "high", pending[0].ID)
	assert.Equal(t, "low", pending[1].ID)

	// Drained.
	assert.Equal(t, 0, len(buffer.TakePending()))
}

func TestMessageBuffer_Digest(t *testing.T) {
	local := newMessageBuffer(10)
	local.Record(testMessage("m1", time.Now()))
	local.Record(testMessage("m2", time.Now()))

	remote := digest{
		{MessageID: "m2", Timestamp: time.Now()},
		{MessageID: "m3", Timestamp: time.Now()},
	}

	missing := local.MissingFrom(remote)
	assert.Equal(t, 1, len(missing))
	assert.Equal(t, "m1", missing[0].ID)

	unknown := local.UnknownIn(remote)
	assert.Equal(t, []string{"m3"}, unknown)

	assert.Equal(t, 2, len(local.Digest()))
}

func TestMessageBuffer_GarbageCollect(t *testing.T) {
	buffer := newMessageBuffer(10)

	old := testMessage("old", time.Now().Add(-time.Hour))
	buffer.Record(old)
	fresh := testMessage("fresh", time.Now())
	buffer.Record(fresh)

	removed := buffer.GarbageCollect(time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, buffer.Len())

	_, ok := buffer.Get("fresh")
	assert.True(t, ok)

	// The seen entry was only just recorded so duplicates are still
	// suppressed.
	assert.True(t, buffer.Seen("old"))
}

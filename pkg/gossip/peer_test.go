package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeerSet_AddRemove(t *testing.T) {
	peers := newPeerSet()

	assert.True(t, peers.Add("peer-1", 0.5))
	assert.False(t, peers.Add("peer-1", 0.8))
	assert.Equal(t, 1, peers.Len())

	list := peers.List()
	assert.Equal(t, 1, len(list))
	assert.Equal(t, "peer-1", list[0].ID)
	assert.Equal(t, 0.8, list[0].Quality)

	assert.True(t, peers.Remove("peer-1"))
	assert.False(t, peers.Remove("peer-1"))
	assert.Equal(t, 0, peers.Len())
}

func TestPeerSet_RecordContact(t *testing.T) {
	peers := newPeerSet()
	peers.Add("peer-1", 0)

	peers.RecordContact("peer-1", 3)
	peers.RecordSent("peer-1", 2)

	// Unknown peers are ignored.
	peers.RecordContact("peer-2", 1)

	list := peers.List()
	assert.Equal(t, uint64(3), list[0].MessagesReceived)
	assert.Equal(t, uint64(2), list[0].MessagesSent)
}

func TestPeerSet_Select(t *testing.T) {
	t.Run("bounded by n", func(t *testing.T) {
		peers := newPeerSet()
		peers.Add("peer-1", 0)
		peers.Add("peer-2", 0)
		peers.Add("peer-3", 0)

		assert.Equal(t, 2, len(peers.Select(2, false, 0)))
		assert.Equal(t, 3, len(peers.Select(5, false, 0)))
	})

	t.Run("quality weight dominates", func(t *testing.T) {
		peers := newPeerSet()
		peers.Add("best", 1.0)
		peers.Add("worst", 0.0)

		// With a weight far above the random jitter the high quality
		// peer always ranks first.
		selected := peers.Select(1, false, 100)
		assert.Equal(t, []string{"best"}, selected)
	})

	t.Run("empty", func(t *testing.T) {
		peers := newPeerSet()
		assert.Equal(t, 0, len(peers.Select(3, true, 0)))

		_, ok := peers.Random()
		assert.False(t, ok)
	})
}

func TestPeerSet_Prune(t *testing.T) {
	peers := newPeerSet()
	peers.Add("stale", 0)
	peers.Add("fresh", 0)

	// Backdate the stale peer's last contact.
	peers.mu.Lock()
	peers.peers["stale"].LastContact = time.Now().Add(-time.Hour)
	peers.mu.Unlock()

	pruned := peers.Prune(time.Minute)
	assert.Equal(t, []string{"stale"}, pruned)
	assert.Equal(t, 1, peers.Len())
}

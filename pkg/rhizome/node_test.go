package rhizome

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespo92/rhizome/pkg/gossip"
	"github.com/vespo92/rhizome/pkg/log"
)

type heartbeatWatcher struct {
	gossip.NopWatcher

	heartbeats int

	mu sync.Mutex
}

func (w *heartbeatWatcher) OnHeartbeat(_ *gossip.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heartbeats++
}

func (w *heartbeatWatcher) Heartbeats() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heartbeats
}

func testConfig(id string) Config {
	config := DefaultConfig()
	config.ID = id
	config.HeartbeatInterval = time.Millisecond * 10
	config.GCInterval = time.Millisecond * 50
	config.Gossip.Interval = time.Millisecond * 10
	config.Gossip.AntiEntropyInterval = time.Millisecond * 50
	return config
}

func testNode(
	id string,
	network *gossip.MemNetwork,
	watcher gossip.Watcher,
) *Node {
	return NewNode(
		testConfig(id),
		network.Transport(id),
		gossip.NewInsecureSigner(),
		watcher,
		log.NewNopLogger(),
	)
}

func TestNode_StatePropagation(t *testing.T) {
	network := gossip.NewMemNetwork()
	nodeA := testNode("node-a", network, nil)
	nodeB := testNode("node-b", network, nil)

	nodeA.Engine().AddPeer("node-b", 1)
	nodeB.Engine().AddPeer("node-a", 1)

	nodeA.Start()
	defer nodeA.Stop()
	nodeB.Start()
	defer nodeB.Stop()

	_, err := nodeA.Store().Set("x", "one", nil)
	require.NoError(t, err)

	// The write reaches node-b within a few gossip rounds.
	assert.Eventually(t, func() bool {
		value, ok := nodeB.Store().Get("x")
		return ok && value == "one"
	}, time.Second*3, time.Millisecond*10)

	// node-b's causal history includes node-a's write.
	assert.True(t, nodeB.Store().Version().Counter("node-a") >= 1)
}

func TestNode_ConcurrentWritesConverge(t *testing.T) {
	network := gossip.NewMemNetwork()
	nodeA := testNode("node-a", network, nil)
	nodeB := testNode("node-b", network, nil)

	nodeA.Engine().AddPeer("node-b", 1)
	nodeB.Engine().AddPeer("node-a", 1)

	nodeA.Start()
	defer nodeA.Stop()
	nodeB.Start()
	defer nodeB.Stop()

	// Concurrent writes to the same key under last-write-wins; node-b's
	// later write must win on both nodes.
	_, err := nodeA.Store().Set("y", "a", nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 2)
	_, err = nodeB.Store().Set("y", "b", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		valueA, okA := nodeA.Store().Get("y")
		valueB, okB := nodeB.Store().Get("y")
		return okA && okB && valueA == "b" && valueB == "b"
	}, time.Second*3, time.Millisecond*10)
}

func TestNode_DeleteReplicates(t *testing.T) {
	network := gossip.NewMemNetwork()
	nodeA := testNode("node-a", network, nil)
	nodeB := testNode("node-b", network, nil)

	nodeA.Engine().AddPeer("node-b", 1)
	nodeB.Engine().AddPeer("node-a", 1)

	nodeA.Start()
	defer nodeA.Stop()
	nodeB.Start()
	defer nodeB.Stop()

	_, err := nodeA.Store().Set("doomed", "soon", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := nodeB.Store().Get("doomed")
		return ok
	}, time.Second*3, time.Millisecond*10)

	require.True(t, nodeA.Store().Delete("doomed"))

	assert.Eventually(t, func() bool {
		_, ok := nodeB.Store().Get("doomed")
		return !ok
	}, time.Second*3, time.Millisecond*10)
}

func TestNode_Heartbeats(t *testing.T) {
	network := gossip.NewMemNetwork()
	watcher := &heartbeatWatcher{}
	nodeA := testNode("node-a", network, nil)
	nodeB := testNode("node-b", network, watcher)

	nodeA.Engine().AddPeer("node-b", 1)
	nodeB.Engine().AddPeer("node-a", 1)

	nodeA.Start()
	defer nodeA.Stop()
	nodeB.Start()
	defer nodeB.Stop()

	assert.Eventually(t, func() bool {
		return watcher.Heartbeats() > 0
	}, time.Second*3, time.Millisecond*10)
}

func TestNode_StartStop(t *testing.T) {
	network := gossip.NewMemNetwork()
	node := testNode("node-a", network, nil)

	node.Start()
	// Idempotent.
	node.Start()

	require.NoError(t, node.Stop())
	require.NoError(t, node.Stop())
}

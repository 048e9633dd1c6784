//go:build integration

package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespo92/rhizome/pkg/log"
)

func udpEngine(t *testing.T, nodeID string, watcher Watcher) (*Engine, *UDPTransport) {
	config := DefaultConfig()
	config.Interval = time.Millisecond * 10
	config.AntiEntropyInterval = time.Millisecond * 50
	config.Strategy = StrategyPushPull

	transport, err := NewUDPTransport(
		"127.0.0.1:0", config.MaxPacketSize, log.NewNopLogger(),
	)
	require.NoError(t, err)

	engine := NewEngine(
		nodeID,
		config,
		transport,
		NewInsecureSigner(),
		watcher,
		log.NewNopLogger(),
	)
	return engine, transport
}

func TestUDPTransport_Propagation(t *testing.T) {
	watcher2 := newRecordWatcher()

	engine1, transport1 := udpEngine(t, "node-1", newRecordWatcher())
	defer engine1.Stop()
	engine2, transport2 := udpEngine(t, "node-2", watcher2)
	defer engine2.Stop()

	require.NoError(
		t, transport1.AddPeer("node-2", transport2.LocalAddr().String()),
	)
	require.NoError(
		t, transport2.AddPeer("node-1", transport1.LocalAddr().String()),
	)
	engine1.AddPeer("node-2", 1)
	engine2.AddPeer("node-1", 1)

	engine1.Start()
	engine2.Start()

	_, err := engine1.Broadcast(TypeAlert, []byte("over the wire"), nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		for _, m := range watcher2.Received() {
			if string(m.Payload) == "over the wire" {
				return true
			}
		}
		return false
	}, time.Second*5, time.Millisecond*10)
}

func TestUDPTransport_UnknownPeer(t *testing.T) {
	transport, err := NewUDPTransport(
		"127.0.0.1:0", 65507, log.NewNopLogger(),
	)
	require.NoError(t, err)
	defer transport.Close()

	assert.Error(t, transport.Send("node-x", []byte("payload")))
}

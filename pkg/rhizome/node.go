// Package rhizome binds the gossip engine and the state store into a
// running node.
//
// Local store writes are broadcast as state update messages; inbound
// state updates are decoded and applied to the store. The node also
// broadcasts periodic heartbeats and drives store garbage collection.
package rhizome

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/vespo92/rhizome/pkg/gossip"
	"github.com/vespo92/rhizome/pkg/log"
	"github.com/vespo92/rhizome/pkg/statesync"
)

// Node owns one gossip engine and one state store.
type Node struct {
	config Config

	engine *gossip.Engine
	store  *statesync.Store

	// watcher receives the gossip notifications the node doesn't consume
	// itself.
	watcher gossip.Watcher

	logger log.Logger

	started    *atomic.Bool
	closed     *atomic.Bool
	shutdownCh chan struct{}
}

// NewNode creates a node with the given transport and signer. watcher
// may be nil.
//
// The node takes ownership of the transport.
func NewNode(
	config Config,
	transport gossip.Transport,
	signer gossip.Signer,
	watcher gossip.Watcher,
	logger log.Logger,
) *Node {
	if watcher == nil {
		watcher = gossip.NewNopWatcher()
	}

	node := &Node{
		config:     config,
		watcher:    watcher,
		logger:     logger.WithSubsystem("node"),
		started:    atomic.NewBool(false),
		closed:     atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
	}

	// The node sits between the two layers: it is the engine's watcher
	// (applying state updates to the store) and the store's broadcaster
	// (propagating deltas via the engine).
	node.engine = gossip.NewEngine(
		config.ID,
		config.Gossip,
		transport,
		signer,
		(*nodeWatcher)(node),
		logger,
	)
	node.store = statesync.NewStore(
		config.ID,
		config.Sync,
		(*nodeBroadcaster)(node),
		statesync.NewNopWatcher(),
		logger,
	)

	return node
}

// Start begins gossip rounds, the session reaper, heartbeats and
// garbage collection.
func (n *Node) Start() {
	if !n.started.CompareAndSwap(false, true) {
		// Already started.
		return
	}

	n.logger.Info("starting node", zap.String("node-id", n.config.ID))

	n.engine.Start()
	n.store.Start()

	go n.heartbeatLoop()
	go n.gcLoop()
}

// Stop shuts down the engine and the store.
func (n *Node) Stop() error {
	if !n.closed.CompareAndSwap(false, true) {
		// Already stopped.
		return nil
	}

	close(n.shutdownCh)
	n.store.Stop()
	return n.engine.Stop()
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.config.ID
}

// Engine returns the node's gossip engine.
func (n *Node) Engine() *gossip.Engine {
	return n.engine
}

// Store returns the node's state store.
func (n *Node) Store() *statesync.Store {
	return n.store
}

func (n *Node) heartbeatLoop() {
	ticker := time.NewTicker(n.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := n.engine.Broadcast(
				gossip.TypeHeartbeat, nil, &gossip.BroadcastOptions{
					Priority:  2,
					ExpiresIn: n.config.HeartbeatInterval * 3,
				},
			); err != nil {
				n.logger.Warn("failed to broadcast heartbeat", zap.Error(err))
			}

		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) gcLoop() {
	ticker := time.NewTicker(n.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.store.GarbageCollect()

		case <-n.shutdownCh:
			return
		}
	}
}

// nodeBroadcaster propagates store deltas via the gossip engine.
type nodeBroadcaster Node

func (b *nodeBroadcaster) BroadcastDelta(d *statesync.Delta) error {
	payload, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}
	if _, err := b.engine.Broadcast(
		gossip.TypeStateUpdate, payload, nil,
	); err != nil {
		return fmt.Errorf("broadcast delta: %w", err)
	}
	return nil
}

var _ statesync.Broadcaster = &nodeBroadcaster{}

// nodeWatcher consumes state updates off the engine and forwards every
// notification to the application watcher.
type nodeWatcher Node

func (w *nodeWatcher) OnStateUpdate(m *gossip.Message) {
	d, err := statesync.DecodeDelta(m.Payload)
	if err != nil {
		w.logger.Warn(
			"failed to decode state update",
			zap.String("message-id", m.ID),
			zap.String("origin", m.Origin),
			zap.Error(err),
		)
		return
	}
	w.store.ApplyDelta(d)

	w.watcher.OnStateUpdate(m)
}

func (w *nodeWatcher) OnMessageBroadcast(m *gossip.Message) {
	w.watcher.OnMessageBroadcast(m)
}

func (w *nodeWatcher) OnMessageReceived(m *gossip.Message, fromPeer string) {
	w.watcher.OnMessageReceived(m, fromPeer)
}

func (w *nodeWatcher) OnMessageDropped(
	m *gossip.Message, fromPeer string, reason gossip.DropReason,
) {
	w.watcher.OnMessageDropped(m, fromPeer, reason)
}

func (w *nodeWatcher) OnDiscovery(m *gossip.Message) {
	w.watcher.OnDiscovery(m)
}

func (w *nodeWatcher) OnHeartbeat(m *gossip.Message) {
	w.watcher.OnHeartbeat(m)
}

func (w *nodeWatcher) OnAlert(m *gossip.Message) {
	w.watcher.OnAlert(m)
}

func (w *nodeWatcher) OnTopologyChange(m *gossip.Message) {
	w.watcher.OnTopologyChange(m)
}

func (w *nodeWatcher) OnResourceUpdate(m *gossip.Message) {
	w.watcher.OnResourceUpdate(m)
}

func (w *nodeWatcher) OnGovernance(m *gossip.Message) {
	w.watcher.OnGovernance(m)
}

func (w *nodeWatcher) OnRepair(m *gossip.Message) {
	w.watcher.OnRepair(m)
}

func (w *nodeWatcher) OnRoundCompleted(stats gossip.RoundStats) {
	w.watcher.OnRoundCompleted(stats)
}

func (w *nodeWatcher) OnPeerAdded(peerID string) {
	w.watcher.OnPeerAdded(peerID)
}

func (w *nodeWatcher) OnPeerRemoved(peerID string) {
	w.watcher.OnPeerRemoved(peerID)
}

var _ gossip.Watcher = &nodeWatcher{}

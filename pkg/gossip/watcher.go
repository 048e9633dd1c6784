package gossip

import "time"

// RoundStats records what happened during one gossip round.
type RoundStats struct {
	// Peers is the number of peers contacted.
	Peers int `json:"peers"`

	// Sent is the number of messages pushed to peers.
	Sent int `json:"sent"`

	// Received is the number of messages accepted during the round.
	Received uint64 `json:"received"`

	// Duplicate is the number of duplicate messages rejected during the
	// round.
	Duplicate uint64 `json:"duplicate"`

	Duration time.Duration `json:"duration"`
}

// Watcher receives notifications of engine activity.
//
// Implementations must not block and must not call back into the engine.
type Watcher interface {
	// OnMessageBroadcast notifies that the local node broadcast a message.
	OnMessageBroadcast(m *Message)

	// OnMessageReceived notifies that a message was accepted from a peer.
	// It is called before the type-specific callback.
	OnMessageReceived(m *Message, fromPeer string)

	// OnMessageDropped notifies that an inbound message was rejected.
	OnMessageDropped(m *Message, fromPeer string, reason DropReason)

	// Type-specific callbacks, dispatched on the accepted message's type.
	OnDiscovery(m *Message)
	OnHeartbeat(m *Message)
	OnStateUpdate(m *Message)
	OnAlert(m *Message)
	OnTopologyChange(m *Message)
	OnResourceUpdate(m *Message)
	OnGovernance(m *Message)
	OnRepair(m *Message)

	// OnRoundCompleted notifies that a gossip round finished.
	OnRoundCompleted(stats RoundStats)

	OnPeerAdded(peerID string)
	OnPeerRemoved(peerID string)
}

// NopWatcher discards all notifications. Embed it to implement only a
// subset of Watcher.
type NopWatcher struct {
}

func NewNopWatcher() *NopWatcher {
	return &NopWatcher{}
}

func (w *NopWatcher) OnMessageBroadcast(_ *Message) {}

func (w *NopWatcher) OnMessageReceived(_ *Message, _ string) {}

func (w *NopWatcher) OnMessageDropped(_ *Message, _ string, _ DropReason) {}

func (w *NopWatcher) OnDiscovery(_ *Message) {}

func (w *NopWatcher) OnHeartbeat(_ *Message) {}

func (w *NopWatcher) OnStateUpdate(_ *Message) {}

func (w *NopWatcher) OnAlert(_ *Message) {}

func (w *NopWatcher) OnTopologyChange(_ *Message) {}

func (w *NopWatcher) OnResourceUpdate(_ *Message) {}

func (w *NopWatcher) OnGovernance(_ *Message) {}

func (w *NopWatcher) OnRepair(_ *Message) {}

func (w *NopWatcher) OnRoundCompleted(_ RoundStats) {}

func (w *NopWatcher) OnPeerAdded(_ string) {}

func (w *NopWatcher) OnPeerRemoved(_ string) {}

var _ Watcher = &NopWatcher{}

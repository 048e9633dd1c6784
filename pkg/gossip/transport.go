package gossip

import (
	"fmt"
	"sync"
)

// Handler receives inbound packets from a transport.
type Handler func(b []byte)

// Transport delivers packets to peers. The engine is transport agnostic;
// real deployments plug in a network transport while tests use the
// in-memory transport.
type Transport interface {
	// Send delivers the packet to the peer with the given ID.
	Send(peerID string, b []byte) error

	// OnPacket registers the handler for inbound packets. Must be called
	// before any packet arrives.
	OnPacket(handler Handler)

	Close() error
}

// MemNetwork is an in-process packet network connecting in-memory
// transports by node ID.
type MemNetwork struct {
	transports map[string]*memTransport

	// mu protects the above fields.
	mu sync.Mutex
}

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{
		transports: make(map[string]*memTransport),
	}
}

// Transport registers and returns a transport for the node with the
// given ID.
func (n *MemNetwork) Transport(nodeID string) Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	transport := &memTransport{
		nodeID:  nodeID,
		network: n,
	}
	n.transports[nodeID] = transport
	return transport
}

func (n *MemNetwork) deliver(to string, b []byte) error {
	n.mu.Lock()
	transport, ok := n.transports[to]
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown peer: %s", to)
	}

	transport.mu.Lock()
	handler := transport.handler
	closed := transport.closed
	transport.mu.Unlock()

	if closed || handler == nil {
		return fmt.Errorf("peer unreachable: %s", to)
	}

	// Copy so the receiver may retain the packet.
	packet := make([]byte, len(b))
	copy(packet, b)
	handler(packet)
	return nil
}

type memTransport struct {
	nodeID  string
	network *MemNetwork

	handler Handler
	closed  bool

	// mu protects the above fields.
	mu sync.Mutex
}

func (t *memTransport) Send(peerID string, b []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	t.mu.Unlock()

	return t.network.deliver(peerID, b)
}

func (t *memTransport) OnPacket(handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

func (t *memTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return nil
}

var _ Transport = &memTransport{}

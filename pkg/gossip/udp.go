package gossip

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/vespo92/rhizome/pkg/log"
)

// UDPTransport delivers packets to peers over UDP.
//
// Peers are registered with their address before messages are sent to
// them, typically when the engine learns of the peer.
type UDPTransport struct {
	ln net.PacketConn

	// addrs maps peer ID to resolved address.
	addrs map[string]*net.UDPAddr

	handler Handler

	readBuf []byte

	logger log.Logger

	// mu protects addrs and handler.
	mu sync.Mutex
}

// NewUDPTransport listens for packets on the given address. The caller
// must register the inbound handler with OnPacket before packets
// arrive; packets received without a handler are discarded.
func NewUDPTransport(
	bindAddr string,
	maxPacketSize int,
	logger log.Logger,
) (*UDPTransport, error) {
	ln, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %s: %w", bindAddr, err)
	}

	transport := &UDPTransport{
		ln:      ln,
		addrs:   make(map[string]*net.UDPAddr),
		readBuf: make([]byte, maxPacketSize),
		logger:  logger.WithSubsystem("gossip.transport"),
	}
	go transport.serve()
	return transport, nil
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.ln.LocalAddr()
}

// AddPeer registers the address for the peer ID.
func (t *UDPTransport) AddPeer(peerID string, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve: %s: %w", addr, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.addrs[peerID] = udpAddr
	return nil
}

// RemovePeer deregisters the peer.
func (t *UDPTransport) RemovePeer(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.addrs, peerID)
}

func (t *UDPTransport) Send(peerID string, b []byte) error {
	t.mu.Lock()
	addr, ok := t.addrs[peerID]
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown peer: %s", peerID)
	}

	if _, err := t.ln.WriteTo(b, addr); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (t *UDPTransport) OnPacket(handler Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = handler
}

func (t *UDPTransport) Close() error {
	return t.ln.Close()
}

func (t *UDPTransport) serve() {
	for {
		n, addr, err := t.ln.ReadFrom(t.readBuf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("failed to read packet", zap.Error(err))
			continue
		}

		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()

		if handler == nil {
			t.logger.Warn(
				"packet discarded; no handler",
				zap.String("addr", addr.String()),
			)
			continue
		}

		// Copy since the handler may retain the packet past the next
		// read.
		packet := make([]byte, n)
		copy(packet, t.readBuf[:n])
		handler(packet)
	}
}

var _ Transport = &UDPTransport{}

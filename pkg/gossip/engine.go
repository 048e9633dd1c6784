package gossip

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vespo92/rhizome/pkg/clock"
	"github.com/vespo92/rhizome/pkg/log"
)

// Engine disseminates messages to the peer set using epidemic gossip.
type Engine struct {
	nodeID string

	config Config

	// localClock is the node's vector clock. Incremented on broadcast and
	// merged with the clock of every accepted message.
	localClock clock.Vector
	// clockMu protects localClock.
	clockMu sync.Mutex

	buffer *messageBuffer
	peers  *peerSet

	transport Transport
	signer    Signer
	watcher   Watcher
	metrics   *Metrics

	// received and duplicates track totals so rounds can report deltas.
	received   *atomic.Uint64
	duplicates *atomic.Uint64

	logger log.Logger

	started    *atomic.Bool
	closed     *atomic.Bool
	shutdownCh chan struct{}
}

// NewEngine creates a gossip engine for the given node. The engine takes
// ownership of the transport.
func NewEngine(
	nodeID string,
	config Config,
	transport Transport,
	signer Signer,
	watcher Watcher,
	logger log.Logger,
) *Engine {
	logger = logger.WithSubsystem("gossip")

	engine := &Engine{
		nodeID:     nodeID,
		config:     config,
		localClock: clock.New(),
		buffer:     newMessageBuffer(config.BufferCapacity),
		peers:      newPeerSet(),
		transport:  transport,
		signer:     signer,
		watcher:    watcher,
		metrics:    newMetrics(),
		received:   atomic.NewUint64(0),
		duplicates: atomic.NewUint64(0),
		logger:     logger,
		started:    atomic.NewBool(false),
		closed:     atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
	}
	transport.OnPacket(engine.handlePacket)
	return engine
}

// Start begins the periodic gossip round and anti-entropy schedulers.
func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		// Already started.
		return
	}

	e.logger.Info(
		"starting gossip",
		zap.String("node-id", e.nodeID),
		zap.String("strategy", string(e.config.Strategy)),
		zap.Int("fanout", e.config.Fanout),
	)

	go e.scheduleFunc(e.config.Interval, e.gossipRound)
	go e.scheduleFunc(e.config.AntiEntropyInterval, e.antiEntropy)
	go e.scheduleFunc(e.config.Interval*10, e.prunePeers)
}

// Stop cancels the schedulers and closes the transport. In-flight peer
// exchanges are abandoned, which is safe since message application is
// idempotent.
func (e *Engine) Stop() error {
	if !e.closed.CompareAndSwap(false, true) {
		// Already stopped.
		return nil
	}

	close(e.shutdownCh)
	return e.transport.Close()
}

// NodeID returns the local node ID.
func (e *Engine) NodeID() string {
	return e.nodeID
}

// Clock returns a snapshot of the local vector clock.
func (e *Engine) Clock() clock.Vector {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()

	return e.localClock.Clone()
}

// Broadcast stamps and queues a message for dissemination in the next
// round.
func (e *Engine) Broadcast(
	t MessageType,
	payload []byte,
	opts *BroadcastOptions,
) (*Message, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("engine stopped")
	}

	priority := 5
	ttl := e.config.DefaultTTL
	expiresIn := e.config.DefaultExpiry
	if opts != nil {
		if opts.Priority < 0 || opts.Priority > 10 {
			return nil, fmt.Errorf("priority out of range: %d", opts.Priority)
		}
		priority = opts.Priority
		if opts.TTL > 0 {
			ttl = opts.TTL
		}
		if opts.ExpiresIn > 0 {
			expiresIn = opts.ExpiresIn
		}
	}

	now := time.Now()

	// The increment and snapshot must be atomic with respect to
	// concurrent broadcasts.
	e.clockMu.Lock()
	e.localClock.Increment(e.nodeID)
	logicalTimestamp := e.localClock.Counter(e.nodeID)
	clockSnapshot := e.localClock.Clone()
	e.clockMu.Unlock()

	m := &Message{
		ID:               newMessageID(),
		Type:             t,
		Origin:           e.nodeID,
		Payload:          payload,
		LogicalTimestamp: logicalTimestamp,
		Clock:            clockSnapshot,
		TTL:              ttl,
		HopCount:         0,
		Priority:         priority,
		Signature:        e.signer.Sign(payload),
		CreatedAt:        now,
		ExpiresAt:        now.Add(expiresIn),
	}

	e.buffer.Record(m)
	e.buffer.Enqueue(m)

	e.metrics.MessagesBroadcast.Inc()
	e.watcher.OnMessageBroadcast(m)

	return m, nil
}

// ReceiveMessage validates and applies an inbound message. Returns
// whether the message was accepted.
//
// Duplicate, expired, TTL-exhausted and invalidly signed messages are
// dropped and surfaced via the watcher; they are never fatal.
func (e *Engine) ReceiveMessage(m *Message, fromPeer string) bool {
	now := time.Now()

	if e.buffer.Seen(m.ID) {
		e.drop(m, fromPeer, DropDuplicate)
		e.duplicates.Inc()
		return false
	}
	if m.Expired(now) {
		e.drop(m, fromPeer, DropExpired)
		return false
	}
	if m.TTL <= 0 {
		e.drop(m, fromPeer, DropTTLExhausted)
		return false
	}
	if !e.signer.Verify(m.Payload, m.Signature) {
		e.drop(m, fromPeer, DropBadSignature)
		return false
	}

	e.clockMu.Lock()
	e.localClock.Merge(m.Clock)
	e.clockMu.Unlock()

	e.buffer.Record(m)

	// Requeue for forwarding while the hop budget lasts.
	forward := m.forwarded()
	if forward.TTL > 0 {
		e.buffer.Enqueue(forward)
	}

	e.received.Inc()
	e.metrics.MessagesReceived.With(map[string]string{
		"type": m.Type.String(),
	}).Inc()

	e.watcher.OnMessageReceived(m, fromPeer)
	e.dispatch(m)

	return true
}

// AddPeer adds the peer with the given quality score in [0, 1].
func (e *Engine) AddPeer(id string, quality float64) {
	if quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}
	if e.peers.Add(id, quality) {
		e.metrics.Peers.Inc()
		e.watcher.OnPeerAdded(id)

		e.logger.Debug("peer added", zap.String("peer-id", id))
	}
}

// RemovePeer removes the peer.
func (e *Engine) RemovePeer(id string) {
	if e.peers.Remove(id) {
		e.metrics.Peers.Dec()
		e.watcher.OnPeerRemoved(id)

		e.logger.Debug("peer removed", zap.String("peer-id", id))
	}
}

// Peers returns a snapshot of the peer table.
func (e *Engine) Peers() []Peer {
	return e.peers.List()
}

// Metrics returns the engine's metric collectors for registration.
// Buffer returns a snapshot of the buffered messages.
func (e *Engine) Buffer() []*Message {
	return e.buffer.Messages()
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Peers:      e.peers.Len(),
		Buffered:   e.buffer.Len(),
		Pending:    e.buffer.PendingLen(),
		Received:   e.received.Load(),
		Duplicates: e.duplicates.Load(),
	}
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Peers      int    `json:"peers"`
	Buffered   int    `json:"buffered"`
	Pending    int    `json:"pending"`
	Received   uint64 `json:"received"`
	Duplicates uint64 `json:"duplicates"`
}

func (e *Engine) scheduleFunc(interval time.Duration, f func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add 10% jitter to avoid nodes synchronising.
			jitterMs := (rand.Int63() % interval.Milliseconds()) / 10
			select {
			case <-time.After(time.Duration(jitterMs) * time.Millisecond):
				f()
			case <-e.shutdownCh:
				return
			}

		case <-e.shutdownCh:
			return
		}
	}
}

// gossipRound contacts up to fanout peers using the configured strategy.
func (e *Engine) gossipRound() {
	start := time.Now()
	receivedBefore := e.received.Load()
	duplicatesBefore := e.duplicates.Load()

	peerIDs := e.peers.Select(
		e.config.Fanout, e.config.PreferFresh, e.config.QualityWeight,
	)
	pending := e.buffer.TakePending()

	sent := atomic.NewUint64(0)

	if len(peerIDs) > 0 {
		var group errgroup.Group
		group.SetLimit(e.config.Fanout)
		for i, peerID := range peerIDs {
			i, peerID := i, peerID
			group.Go(func() error {
				n, err := e.exchange(peerID, i, pending)
				if err != nil {
					e.logger.Warn(
						"peer exchange failed",
						zap.String("peer-id", peerID),
						zap.Error(err),
					)
					// Dropped exchanges are repaired by the next round or
					// by anti-entropy.
					return nil
				}
				sent.Add(uint64(n))
				return nil
			})
		}
		_ = group.Wait()
	}

	e.buffer.GarbageCollect(e.config.MaxMessageAge)

	stats := RoundStats{
		Peers:     len(peerIDs),
		Sent:      int(sent.Load()),
		Received:  e.received.Load() - receivedBefore,
		Duplicate: e.duplicates.Load() - duplicatesBefore,
		Duration:  time.Since(start),
	}

	e.metrics.Rounds.Inc()
	e.metrics.RoundDuration.Observe(stats.Duration.Seconds())
	e.metrics.MessagesSent.Add(float64(stats.Sent))

	e.watcher.OnRoundCompleted(stats)
}

// exchange contacts a single peer per the configured strategy. Returns
// the number of messages pushed.
func (e *Engine) exchange(peerID string, rank int, pending []*Message) (int, error) {
	switch e.config.Strategy {
	case StrategyPush:
		return e.sendMessages(peerID, pending)

	case StrategyPull:
		return 0, e.sendDigest(peerID)

	case StrategyPushPull:
		n, err := e.sendMessages(peerID, pending)
		if err != nil {
			return n, err
		}
		return n, e.sendDigest(peerID)

	case StrategyBimodal:
		// The first peers by selection rank receive the full multicast;
		// the remainder repair via digests.
		if rank < e.config.BimodalMulticastSize {
			return e.sendMessages(peerID, pending)
		}
		return 0, e.sendDigest(peerID)

	default:
		return 0, fmt.Errorf("unsupported strategy: %s", e.config.Strategy)
	}
}

// antiEntropy exchanges a buffer digest with one random peer to repair
// messages the rounds missed.
func (e *Engine) antiEntropy() {
	peerID, ok := e.peers.Random()
	if !ok {
		return
	}

	e.metrics.AntiEntropySyncs.Inc()

	if err := e.sendDigest(peerID); err != nil {
		e.logger.Warn(
			"anti-entropy failed",
			zap.String("peer-id", peerID),
			zap.Error(err),
		)
	}
}

func (e *Engine) prunePeers() {
	for _, id := range e.peers.Prune(e.config.PeerTimeout) {
		e.metrics.Peers.Dec()
		e.watcher.OnPeerRemoved(id)

		e.logger.Info("pruned inactive peer", zap.String("peer-id", id))
	}
}

// sendMessages pushes the given messages to the peer, batching packets
// up to the max packet size. Returns the number of messages sent.
func (e *Engine) sendMessages(peerID string, messages []*Message) (int, error) {
	header := packetHeader{NodeID: e.nodeID}

	sent := 0
	for len(messages) > 0 {
		b, included, err := encodeMessages(header, messages, e.config.MaxPacketSize)
		if err != nil {
			return sent, fmt.Errorf("encode: %w", err)
		}
		if included == 0 {
			// The next message alone exceeds the packet size; skip it
			// rather than stall the batch.
			e.logger.Warn(
				"message exceeds max packet size",
				zap.String("message-id", messages[0].ID),
			)
			messages = messages[1:]
			continue
		}

		if err := e.transport.Send(peerID, b); err != nil {
			return sent, fmt.Errorf("send: %w", err)
		}
		e.metrics.PacketBytesOutbound.Add(float64(len(b)))

		sent += included
		messages = messages[included:]
	}

	e.peers.RecordSent(peerID, sent)
	return sent, nil
}

// sendDigest sends a digest of the buffered messages to the peer. The
// peer responds by pushing the messages we're missing and pulling the
// messages it's missing.
func (e *Engine) sendDigest(peerID string) error {
	d := e.buffer.Digest()
	// Shuffle since we may not be able to send all digest entries.
	rand.Shuffle(len(d), func(i, j int) {
		d[i], d[j] = d[j], d[i]
	})

	header := packetHeader{NodeID: e.nodeID}
	b, err := encodeDigest(header, d, e.config.MaxPacketSize)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if err := e.transport.Send(peerID, b); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	e.metrics.PacketBytesOutbound.Add(float64(len(b)))

	return nil
}

// sendPull requests the messages with the given IDs from the peer.
func (e *Engine) sendPull(peerID string, ids []string) error {
	header := packetHeader{NodeID: e.nodeID}
	b, err := encodePull(header, ids, e.config.MaxPacketSize)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if err := e.transport.Send(peerID, b); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	e.metrics.PacketBytesOutbound.Add(float64(len(b)))

	return nil
}

// handlePacket is the transport's inbound handler.
func (e *Engine) handlePacket(b []byte) {
	if e.closed.Load() {
		return
	}

	e.metrics.PacketBytesInbound.Add(float64(len(b)))

	if len(b) < 2 {
		e.logger.Warn("packet too small", zap.Int("len", len(b)))
		return
	}

	switch packetType(b[0]) {
	case packetTypeMessages:
		e.handleMessages(b)
	case packetTypeDigest:
		e.handleDigest(b)
	case packetTypePull:
		e.handlePull(b)
	default:
		e.logger.Warn(
			"unsupported packet type",
			zap.Uint8("type", b[0]),
		)
	}
}

func (e *Engine) handleMessages(b []byte) {
	header, messages, err := decodeMessages(b)
	if err != nil {
		e.logger.Warn("failed to decode messages packet", zap.Error(err))
		return
	}

	e.peers.RecordContact(header.NodeID, len(messages))

	for _, m := range messages {
		e.ReceiveMessage(m, header.NodeID)
	}
}

func (e *Engine) handleDigest(b []byte) {
	header, remote, err := decodeDigest(b)
	if err != nil {
		e.logger.Warn("failed to decode digest packet", zap.Error(err))
		return
	}

	e.peers.RecordContact(header.NodeID, 0)

	// Push the messages the peer is missing. Forwarding a repair still
	// consumes a hop of the message's TTL budget.
	missing := forwardable(e.buffer.MissingFrom(remote))
	if len(missing) > 0 {
		if _, err := e.sendMessages(header.NodeID, missing); err != nil {
			e.logger.Warn(
				"failed to push missing messages",
				zap.String("peer-id", header.NodeID),
				zap.Error(err),
			)
		}
	}

	// Pull the messages we're missing.
	unknown := e.buffer.UnknownIn(remote)
	if len(unknown) > 0 {
		if err := e.sendPull(header.NodeID, unknown); err != nil {
			e.logger.Warn(
				"failed to pull missing messages",
				zap.String("peer-id", header.NodeID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) handlePull(b []byte) {
	header, ids, err := decodePull(b)
	if err != nil {
		e.logger.Warn("failed to decode pull packet", zap.Error(err))
		return
	}

	e.peers.RecordContact(header.NodeID, 0)

	var messages []*Message
	for _, id := range ids {
		if m, ok := e.buffer.Get(id); ok {
			messages = append(messages, m)
		}
	}
	messages = forwardable(messages)
	if len(messages) == 0 {
		return
	}

	if _, err := e.sendMessages(header.NodeID, messages); err != nil {
		e.logger.Warn(
			"failed to serve pull request",
			zap.String("peer-id", header.NodeID),
			zap.Error(err),
		)
	}
}

func (e *Engine) drop(m *Message, fromPeer string, reason DropReason) {
	e.metrics.MessagesDropped.With(map[string]string{
		"reason": string(reason),
	}).Inc()
	e.watcher.OnMessageDropped(m, fromPeer, reason)

	e.logger.Debug(
		"message dropped",
		zap.String("message-id", m.ID),
		zap.String("from", fromPeer),
		zap.String("reason", string(reason)),
	)
}

// forwardable returns copies of the given messages with one hop
// consumed, dropping those whose TTL budget is spent.
func forwardable(messages []*Message) []*Message {
	var forwards []*Message
	for _, m := range messages {
		forward := m.forwarded()
		if forward.TTL > 0 {
			forwards = append(forwards, forward)
		}
	}
	return forwards
}

func (e *Engine) dispatch(m *Message) {
	switch m.Type {
	case TypeDiscovery:
		e.watcher.OnDiscovery(m)
	case TypeHeartbeat:
		e.watcher.OnHeartbeat(m)
	case TypeStateUpdate:
		e.watcher.OnStateUpdate(m)
	case TypeAlert:
		e.watcher.OnAlert(m)
	case TypeTopologyChange:
		e.watcher.OnTopologyChange(m)
	case TypeResourceUpdate:
		e.watcher.OnResourceUpdate(m)
	case TypeGovernance:
		e.watcher.OnGovernance(m)
	case TypeRepair:
		e.watcher.OnRepair(m)
	}
}

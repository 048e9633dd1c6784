package gossip

import (
	"time"

	"github.com/google/uuid"

	"github.com/vespo92/rhizome/pkg/clock"
)

// MessageType classifies the payload of a gossip message.
type MessageType uint8

const (
	TypeDiscovery MessageType = iota + 1
	TypeHeartbeat
	TypeStateUpdate
	TypeAlert
	TypeTopologyChange
	TypeResourceUpdate
	TypeGovernance
	TypeRepair
)

func (t MessageType) String() string {
	switch t {
	case TypeDiscovery:
		return "discovery"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeStateUpdate:
		return "state_update"
	case TypeAlert:
		return "alert"
	case TypeTopologyChange:
		return "topology_change"
	case TypeResourceUpdate:
		return "resource_update"
	case TypeGovernance:
		return "governance"
	case TypeRepair:
		return "repair"
	default:
		return "unknown"
	}
}

// DropReason names why an inbound message was rejected.
type DropReason string

const (
	DropDuplicate    DropReason = "duplicate"
	DropExpired      DropReason = "expired"
	DropTTLExhausted DropReason = "ttl_exhausted"
	DropBadSignature DropReason = "bad_signature"
)

// Message is a gossip message disseminated to the cluster.
//
// A message is forwarded with TTL-1 and HopCount+1 until the TTL is
// exhausted, and garbage collected once ExpiresAt passes or the buffer
// exceeds capacity.
type Message struct {
	// ID is a globally unique message identifier used for duplicate
	// suppression.
	ID string `json:"id" codec:"id"`

	Type MessageType `json:"type" codec:"type"`

	// Origin is the ID of the node that broadcast the message.
	Origin string `json:"origin" codec:"origin"`

	// Payload is opaque to the engine; the type tag tells receivers how
	// to decode it.
	Payload []byte `json:"payload" codec:"payload"`

	// LogicalTimestamp is the origin's clock counter when the message was
	// broadcast.
	LogicalTimestamp uint64 `json:"logical_timestamp" codec:"logical_timestamp"`

	// Clock is the origin's vector clock at broadcast time.
	Clock clock.Vector `json:"clock" codec:"clock"`

	// TTL is the number of forwarding hops remaining.
	TTL int `json:"ttl" codec:"ttl"`

	// HopCount is the number of hops travelled so far.
	HopCount int `json:"hop_count" codec:"hop_count"`

	// Priority orders pending messages, 0 (lowest) to 10 (highest).
	Priority int `json:"priority" codec:"priority"`

	Signature []byte `json:"signature" codec:"signature"`

	CreatedAt time.Time `json:"created_at" codec:"created_at"`
	ExpiresAt time.Time `json:"expires_at" codec:"expires_at"`
}

// Expired returns whether the message expiry has passed at time t.
func (m *Message) Expired(t time.Time) bool {
	return !m.ExpiresAt.IsZero() && t.After(m.ExpiresAt)
}

// forwarded returns a copy of the message with one hop consumed.
func (m *Message) forwarded() *Message {
	forward := *m
	forward.TTL--
	forward.HopCount++
	return &forward
}

// BroadcastOptions overrides per-message defaults.
type BroadcastOptions struct {
	// Priority orders pending messages, 0-10. Defaults to 5.
	Priority int

	// TTL is the hop budget. Defaults to the configured default TTL.
	TTL int

	// ExpiresIn is how long the message stays valid. Defaults to the
	// configured default expiry.
	ExpiresIn time.Duration
}

func newMessageID() string {
	return uuid.New().String()
}

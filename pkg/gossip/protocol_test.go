package gossip

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_Messages(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		sent := []*Message{
			{
				ID:        "m1",
				Type:      TypeStateUpdate,
				Origin:    "node-1",
				Payload:   []byte("payload-1"),
				TTL:       3,
				HopCount:  1,
				Priority:  5,
				CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
			},
			{
				ID:        "m2",
				Type:      TypeAlert,
				Origin:    "node-2",
				Payload:   []byte("payload-2"),
				TTL:       1,
				Priority:  9,
				CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
			},
		}

		b, included, err := encodeMessages(
			packetHeader{NodeID: "node-1"}, sent, 1024,
		)
		require.NoError(t, err)
		assert.Equal(t, 2, included)

		header, received, err := decodeMessages(b)
		require.NoError(t, err)
		assert.Equal(t, "node-1", header.NodeID)

		require.Equal(t, 2, len(received))
		for i, m := range received {
			assert.Equal(t, sent[i].ID, m.ID)
			assert.Equal(t, sent[i].Type, m.Type)
			assert.Equal(t, sent[i].Origin, m.Origin)
			assert.Equal(t, sent[i].Payload, m.Payload)
			assert.Equal(t, sent[i].TTL, m.TTL)
			assert.Equal(t, sent[i].Priority, m.Priority)
		}
	})

	t.Run("truncated at packet limit", func(t *testing.T) {
		var sent []*Message
		for i := 0; i != 50; i++ {
			sent = append(sent, &Message{
				ID:      fmt.Sprintf("m%d", i),
				Type:    TypeHeartbeat,
				Origin:  "node-1",
				Payload: make([]byte, 64),
				TTL:     3,
			})
		}

		b, included, err := encodeMessages(
			packetHeader{NodeID: "node-1"}, sent, 512,
		)
		require.NoError(t, err)
		assert.True(t, included > 0)
		assert.True(t, included < 50)
		assert.True(t, len(b) <= 512)

		// The truncated packet decodes cleanly with only the included
		// messages.
		_, received, err := decodeMessages(b)
		require.NoError(t, err)
		assert.Equal(t, included, len(received))
	})

	t.Run("max packet size too small", func(t *testing.T) {
		_, _, err := encodeMessages(packetHeader{NodeID: "node-1"}, nil, 4)
		assert.Error(t, err)
	})
}

func TestProtocol_Digest(t *testing.T) {
	sent := digest{
		{MessageID: "m1", Timestamp: time.Now().UTC().Truncate(time.Millisecond)},
		{MessageID: "m2", Timestamp: time.Now().UTC().Truncate(time.Millisecond)},
	}

	b, err := encodeDigest(packetHeader{NodeID: "node-2"}, sent, 1024)
	require.NoError(t, err)

	header, received, err := decodeDigest(b)
	require.NoError(t, err)
	assert.Equal(t, "node-2", header.NodeID)
	require.Equal(t, 2, len(received))
	assert.Equal(t, "m1", received[0].MessageID)
	assert.Equal(t, "m2", received[1].MessageID)
}

func TestProtocol_Pull(t *testing.T) {
	b, err := encodePull(
		packetHeader{NodeID: "node-3"}, []string{"m1", "m2", "m3"}, 1024,
	)
	require.NoError(t, err)

	header, ids, err := decodePull(b)
	require.NoError(t, err)
	assert.Equal(t, "node-3", header.NodeID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
}

func TestProtocol_DecodeErrors(t *testing.T) {
	t.Run("wrong packet type", func(t *testing.T) {
		b, err := encodeDigest(packetHeader{NodeID: "node-1"}, nil, 1024)
		require.NoError(t, err)

		_, _, err = decodeMessages(b)
		assert.Error(t, err)
	})

	t.Run("unsupported version", func(t *testing.T) {
		b, _, err := encodeMessages(packetHeader{NodeID: "node-1"}, nil, 1024)
		require.NoError(t, err)
		b[1] = 0xff

		_, _, err = decodeMessages(b)
		assert.Error(t, err)
	})

	t.Run("empty packet", func(t *testing.T) {
		_, _, err := decodeMessages(nil)
		assert.Error(t, err)
	})
}

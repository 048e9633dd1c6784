package statesync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vespo92/rhizome/pkg/clock"
)

func TestDelta_EncodeDecode(t *testing.T) {
	version := clock.New()
	version.Increment("node-1")

	sent := &Delta{
		ID:  newDeltaID(),
		Key: "profile",
		Op:  OpMerge,
		Value: map[string]interface{}{
			"role": "leader",
		},
		Version:   version,
		Origin:    "node-1",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}

	b, err := sent.Encode()
	require.NoError(t, err)

	received, err := DecodeDelta(b)
	require.NoError(t, err)

	assert.Equal(t, sent.ID, received.ID)
	assert.Equal(t, sent.Key, received.Key)
	assert.Equal(t, sent.Op, received.Op)
	assert.Equal(t, sent.Origin, received.Origin)
	assert.Equal(t, uint64(1), received.Version.Counter("node-1"))

	// Object values decode as string-keyed maps so they merge cleanly
	// into stored values.
	value, ok := received.Value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "leader", value["role"])
}

func TestDelta_DecodeInvalid(t *testing.T) {
	_, err := DecodeDelta([]byte("\xc1"))
	assert.Error(t, err)
}

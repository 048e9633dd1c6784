package statesync

import (
	"bytes"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/ugorji/go/codec"

	"github.com/vespo92/rhizome/pkg/clock"
)

// Op is a delta operation.
type Op string

const (
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpMerge  Op = "merge"
)

// Delta describes one state mutation. Deltas are ephemeral: produced by
// a local write, broadcast, applied remotely and discarded.
type Delta struct {
	ID  string `json:"id" codec:"id"`
	Key string `json:"key" codec:"key"`
	Op  Op     `json:"op" codec:"op"`

	// Value is the new value for SET/UPDATE, or the partial value to
	// merge for MERGE. Unused for DELETE.
	Value interface{} `json:"value" codec:"value"`

	// Version is the origin's vector clock snapshot at write time.
	Version clock.Vector `json:"version" codec:"version"`

	Origin    string    `json:"origin" codec:"origin"`
	Timestamp time.Time `json:"timestamp" codec:"timestamp"`
}

func newDeltaID() string {
	return uuid.New().String()
}

// Encode serialises the delta for broadcast.
func (d *Delta) Encode() ([]byte, error) {
	var buf bytes.Buffer
	var handle codec.MsgpackHandle
	if err := codec.NewEncoder(&buf, &handle).Encode(d); err != nil {
		return nil, fmt.Errorf("encode delta: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeDelta deserialises a broadcast delta payload.
func DecodeDelta(b []byte) (*Delta, error) {
	var handle codec.MsgpackHandle
	// Untyped values decode as map[string]interface{} rather than
	// map[interface{}]interface{}, matching what local writes store.
	handle.MapType = reflect.TypeOf(map[string]interface{}(nil))
	handle.RawToString = true

	var d Delta
	if err := codec.NewDecoderBytes(b, &handle).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	return &d, nil
}

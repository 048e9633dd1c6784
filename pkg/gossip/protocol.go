package gossip

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ugorji/go/codec"
)

type packetType uint8

const (
	packetTypeMessages packetType = iota + 1
	packetTypeDigest
	packetTypePull
)

func (t packetType) String() string {
	switch t {
	case packetTypeMessages:
		return "messages"
	case packetTypeDigest:
		return "digest"
	case packetTypePull:
		return "pull"
	default:
		return "unknown"
	}
}

const supportedVersion uint8 = 0

type packetHeader struct {
	// NodeID identifies the sender.
	NodeID string `codec:"node_id"`
}

type encoder struct {
	encoder *codec.Encoder
}

func newEncoder(writer io.Writer) *encoder {
	var handle codec.MsgpackHandle
	return &encoder{
		encoder: codec.NewEncoder(writer, &handle),
	}
}

func (e *encoder) Encode(v interface{}) error {
	return e.encoder.Encode(v)
}

type decoder struct {
	decoder *codec.Decoder
}

func newDecoder(reader io.Reader) *decoder {
	var handle codec.MsgpackHandle
	return &decoder{
		decoder: codec.NewDecoder(reader, &handle),
	}
}

func (d *decoder) Decode(v interface{}) error {
	return d.decoder.Decode(v)
}

// encodeMessages encodes a messages packet, appending messages until the
// packet size limit is exceeded. Returns the encoded packet and the
// number of messages included.
func encodeMessages(
	header packetHeader,
	messages []*Message,
	maxPacketSize int,
) ([]byte, int, error) {
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(packetTypeMessages))
	_ = buf.WriteByte(supportedVersion)

	encoder := newEncoder(&buf)

	if err := encoder.Encode(&header); err != nil {
		return nil, 0, fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > maxPacketSize {
		return nil, 0, fmt.Errorf(
			"max packet size too small for header: %d < %d",
			maxPacketSize, buf.Len(),
		)
	}

	// Keep appending messages until we exceed the max packet size. bufLen
	// contains the number of bytes to send (which may be less than
	// buf.Len() if we exceed the packet limit).
	bufLen := buf.Len()
	included := 0
	for _, m := range messages {
		if err := encoder.Encode(m); err != nil {
			return nil, 0, fmt.Errorf("encode: %w", err)
		}

		if buf.Len() > maxPacketSize {
			break
		}
		bufLen = buf.Len()
		included++
	}

	return buf.Bytes()[:bufLen], included, nil
}

func decodeMessages(b []byte) (packetHeader, []*Message, error) {
	decoder, header, err := decodePacketHeader(b, packetTypeMessages)
	if err != nil {
		return packetHeader{}, nil, err
	}

	var messages []*Message
	for {
		// Read messages until EOF.
		var m Message
		if err := decoder.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return packetHeader{}, nil, fmt.Errorf("decode: %w", err)
		}
		messages = append(messages, &m)
	}

	return header, messages, nil
}

// encodeDigest encodes a digest packet, appending digest entries until
// the packet size limit is exceeded.
func encodeDigest(
	header packetHeader,
	d digest,
	maxPacketSize int,
) ([]byte, error) {
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(packetTypeDigest))
	_ = buf.WriteByte(supportedVersion)

	encoder := newEncoder(&buf)

	if err := encoder.Encode(&header); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > maxPacketSize {
		return nil, fmt.Errorf(
			"max packet size too small for header: %d < %d",
			maxPacketSize, buf.Len(),
		)
	}

	bufLen := buf.Len()
	for _, entry := range d {
		if err := encoder.Encode(&entry); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}

		if buf.Len() > maxPacketSize {
			break
		}
		bufLen = buf.Len()
	}

	return buf.Bytes()[:bufLen], nil
}

func decodeDigest(b []byte) (packetHeader, digest, error) {
	decoder, header, err := decodePacketHeader(b, packetTypeDigest)
	if err != nil {
		return packetHeader{}, nil, err
	}

	var d digest
	for {
		// Read digest entries until EOF.
		var entry digestEntry
		if err := decoder.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return packetHeader{}, nil, fmt.Errorf("decode: %w", err)
		}
		d = append(d, entry)
	}

	return header, d, nil
}

// encodePull encodes a pull request for the given message IDs.
func encodePull(
	header packetHeader,
	ids []string,
	maxPacketSize int,
) ([]byte, error) {
	var buf bytes.Buffer
	_ = buf.WriteByte(uint8(packetTypePull))
	_ = buf.WriteByte(supportedVersion)

	encoder := newEncoder(&buf)

	if err := encoder.Encode(&header); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	if buf.Len() > maxPacketSize {
		return nil, fmt.Errorf(
			"max packet size too small for header: %d < %d",
			maxPacketSize, buf.Len(),
		)
	}

	bufLen := buf.Len()
	for _, id := range ids {
		if err := encoder.Encode(id); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}

		if buf.Len() > maxPacketSize {
			break
		}
		bufLen = buf.Len()
	}

	return buf.Bytes()[:bufLen], nil
}

func decodePull(b []byte) (packetHeader, []string, error) {
	decoder, header, err := decodePacketHeader(b, packetTypePull)
	if err != nil {
		return packetHeader{}, nil, err
	}

	var ids []string
	for {
		// Read IDs until EOF.
		var id string
		if err := decoder.Decode(&id); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return packetHeader{}, nil, fmt.Errorf("decode: %w", err)
		}
		ids = append(ids, id)
	}

	return header, ids, nil
}

func decodePacketHeader(b []byte, expected packetType) (*decoder, packetHeader, error) {
	r := bytes.NewBuffer(b)

	firstByte, err := r.ReadByte()
	if err != nil {
		return nil, packetHeader{}, fmt.Errorf("read: %w", err)
	}
	packetType := packetType(firstByte)
	if packetType != expected {
		return nil, packetHeader{}, fmt.Errorf("incorrect packet type: %s", packetType)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, packetHeader{}, fmt.Errorf("read: %w", err)
	}
	if version != supportedVersion {
		return nil, packetHeader{}, fmt.Errorf("unsupported version: %d", version)
	}

	dec := newDecoder(r)
	var header packetHeader
	if err := dec.Decode(&header); err != nil {
		return nil, packetHeader{}, fmt.Errorf("decode: %w", err)
	}

	return dec, header, nil
}

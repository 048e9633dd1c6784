package gossip

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Signer signs outbound message payloads and verifies inbound ones.
//
// Real deployments supply asymmetric signing; the engine only requires
// this interface.
type Signer interface {
	Sign(payload []byte) []byte
	Verify(payload []byte, signature []byte) bool
}

// HMACSigner signs payloads with HMAC-SHA256 using a key shared across
// the cluster.
type HMACSigner struct {
	key []byte
}

func NewHMACSigner(key []byte) *HMACSigner {
	return &HMACSigner{key: key}
}

func (s *HMACSigner) Sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

func (s *HMACSigner) Verify(payload []byte, signature []byte) bool {
	return hmac.Equal(s.Sign(payload), signature)
}

var _ Signer = &HMACSigner{}

// InsecureSigner produces empty signatures and accepts any message.
type InsecureSigner struct {
}

func NewInsecureSigner() *InsecureSigner {
	return &InsecureSigner{}
}

func (s *InsecureSigner) Sign(_ []byte) []byte {
	return nil
}

func (s *InsecureSigner) Verify(_ []byte, _ []byte) bool {
	return true
}

var _ Signer = &InsecureSigner{}

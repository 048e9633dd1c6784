package statesync

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/ugorji/go/codec"

	"github.com/vespo92/rhizome/pkg/clock"
)

// merkleTree is a hash tree over the store's key space. Two replicas
// with equal roots hold identical state, so anti-entropy compares roots
// before exchanging any data.
//
// Leaves are per-key hashes. The root is rebuilt lazily by hashing
// sorted leaves in groups of the branching factor until a single hash
// remains.
//
// The tree is not safe for concurrent use; the store's mutex guards it.
type merkleTree struct {
	branching int

	leaves map[string][]byte

	// root caches the last computed root; nil when dirty.
	root []byte
}

func newMerkleTree(branching int) *merkleTree {
	return &merkleTree{
		branching: branching,
		leaves:    make(map[string][]byte),
	}
}

// Update sets the leaf hash for the key.
func (t *merkleTree) Update(key string, hash []byte) {
	t.leaves[key] = hash
	t.root = nil
}

// Remove drops the leaf for the key.
func (t *merkleTree) Remove(key string) {
	delete(t.leaves, key)
	t.root = nil
}

// Root returns the root hash, or nil when the tree is empty.
func (t *merkleTree) Root() []byte {
	if t.root != nil {
		return t.root
	}
	if len(t.leaves) == 0 {
		return nil
	}

	keys := make([]string, 0, len(t.leaves))
	for key := range t.leaves {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	level := make([][]byte, 0, len(keys))
	for _, key := range keys {
		level = append(level, t.leaves[key])
	}

	// Hash groups of up to branching hashes until one remains.
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+t.branching-1)/t.branching)
		for start := 0; start < len(level); start += t.branching {
			end := start + t.branching
			if end > len(level) {
				end = len(level)
			}
			h := sha256.New()
			for _, hash := range level[start:end] {
				_, _ = h.Write(hash)
			}
			next = append(next, h.Sum(nil))
		}
		level = next
	}

	t.root = level[0]
	return t.root
}

// Leaves returns a snapshot of the per-key leaf hashes.
func (t *merkleTree) Leaves() map[string][]byte {
	leaves := make(map[string][]byte, len(t.leaves))
	for key, hash := range t.leaves {
		leaves[key] = hash
	}
	return leaves
}

// Diff returns the sorted keys whose leaf hashes differ from the remote
// leaves, including keys only one side holds.
func (t *merkleTree) Diff(remote map[string][]byte) []string {
	var diverged []string
	for key, hash := range t.leaves {
		remoteHash, ok := remote[key]
		if !ok || !bytes.Equal(hash, remoteHash) {
			diverged = append(diverged, key)
		}
	}
	for key := range remote {
		if _, ok := t.leaves[key]; !ok {
			diverged = append(diverged, key)
		}
	}
	sort.Strings(diverged)
	return diverged
}

// merkleLeaf is the hashed representation of an entry.
type merkleLeaf struct {
	Key     string            `codec:"key"`
	Value   interface{}       `codec:"value"`
	Version map[string]uint64 `codec:"version"`
	Deleted bool              `codec:"deleted"`
}

// leafHash hashes the replicated fields of an entry. Wall-clock fields
// are excluded so replicas that applied the same writes hash equal.
func leafHash(key string, value interface{}, version clock.Vector, deleted bool) []byte {
	var buf bytes.Buffer
	var handle codec.MsgpackHandle
	// Canonical map ordering so equal leaves encode identically.
	handle.Canonical = true
	_ = codec.NewEncoder(&buf, &handle).Encode(merkleLeaf{
		Key:     key,
		Value:   value,
		Version: version.Counters,
		Deleted: deleted,
	})
	sum := sha256.Sum256(buf.Bytes())
	return sum[:]
}

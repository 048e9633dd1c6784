package statesync

import (
	"time"

	"github.com/vespo92/rhizome/pkg/clock"
)

// ConflictPolicy decides how a concurrent delta for a key is resolved.
type ConflictPolicy string

const (
	// PolicyLWW applies the write with the larger wall-clock timestamp.
	// Equal timestamps are broken by the lexicographically smaller origin
	// node ID, so every replica resolves the same way.
	PolicyLWW ConflictPolicy = "lww"
	// PolicyMerge map-merges concurrent MERGE deltas and falls back to
	// LWW for other operations.
	PolicyMerge ConflictPolicy = "merge"
	// PolicyPriority applies the write from the lexicographically smaller
	// origin node ID.
	PolicyPriority ConflictPolicy = "priority"
	// PolicyCustom surfaces the conflict to the watcher and leaves the
	// entry untouched.
	PolicyCustom ConflictPolicy = "custom"
)

// Entry is the stored record for a key.
type Entry struct {
	Key string `json:"key" codec:"key"`

	// Type is an application classification tag for the value.
	Type string `json:"type" codec:"type"`

	Value interface{} `json:"value" codec:"value"`

	// Version is the vector clock snapshot of the entry's last write,
	// used for causal ordering against inbound deltas.
	Version clock.Vector `json:"version" codec:"version"`

	// Origin is the node that performed the last write.
	Origin string `json:"origin" codec:"origin"`

	Policy ConflictPolicy `json:"policy" codec:"policy"`

	CreatedAt time.Time `json:"created_at" codec:"created_at"`
	UpdatedAt time.Time `json:"updated_at" codec:"updated_at"`

	// Deleted marks the entry as a tombstone. Tombstones are retained so
	// the deletion itself replicates, then garbage collected.
	Deleted bool `json:"deleted" codec:"deleted"`

	// TTL is the entry's lifetime from its last update. Zero means no
	// expiry.
	TTL time.Duration `json:"ttl" codec:"ttl"`
}

// expired returns whether the entry's TTL has lapsed.
func (e *Entry) expired(t time.Time) bool {
	return e.TTL > 0 && t.Sub(e.UpdatedAt) > e.TTL
}

func (e *Entry) clone() *Entry {
	clone := *e
	clone.Version = e.Version.Clone()
	return &clone
}

// SetOptions configures a write.
type SetOptions struct {
	// Type is an application classification tag for the value.
	Type string

	// Policy is the conflict policy for the entry. Defaults to the
	// store's configured default.
	Policy ConflictPolicy

	// TTL is the entry's lifetime. Zero means no expiry.
	TTL time.Duration
}

package statesync

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// MaxSyncSessions is the maximum number of concurrent sync sessions.
	// Starting a session past the limit fails fast.
	MaxSyncSessions int `json:"max_sync_sessions" yaml:"max_sync_sessions"`

	// SessionTimeout is how long an inactive sync session may live before
	// the reaper expires it.
	SessionTimeout time.Duration `json:"session_timeout" yaml:"session_timeout"`

	// TombstoneRetention is how long a deleted entry's tombstone is
	// retained so the deletion replicates before garbage collection.
	TombstoneRetention time.Duration `json:"tombstone_retention" yaml:"tombstone_retention"`

	// MerkleEnabled gates Merkle root comparison when starting a sync
	// session. When disabled sessions fall back to a full key list.
	MerkleEnabled bool `json:"merkle_enabled" yaml:"merkle_enabled"`

	// MerkleBranching is the fan-out of the Merkle tree.
	MerkleBranching int `json:"merkle_branching" yaml:"merkle_branching"`

	// DefaultPolicy is the conflict policy for entries written without an
	// explicit one.
	DefaultPolicy ConflictPolicy `json:"default_policy" yaml:"default_policy"`
}

func DefaultConfig() Config {
	return Config{
		MaxSyncSessions:    8,
		SessionTimeout:     time.Second * 30,
		TombstoneRetention: time.Minute * 10,
		MerkleEnabled:      true,
		MerkleBranching:    16,
		DefaultPolicy:      PolicyLWW,
	}
}

func (c *Config) Validate() error {
	if c.MaxSyncSessions <= 0 {
		return fmt.Errorf("missing max sync sessions")
	}
	if c.SessionTimeout == 0 {
		return fmt.Errorf("missing session timeout")
	}
	if c.TombstoneRetention == 0 {
		return fmt.Errorf("missing tombstone retention")
	}
	if c.MerkleBranching < 2 {
		return fmt.Errorf("merkle branching must be at least 2")
	}
	switch c.DefaultPolicy {
	case PolicyLWW, PolicyMerge, PolicyPriority, PolicyCustom:
	default:
		return fmt.Errorf("unsupported conflict policy: %s", c.DefaultPolicy)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(
		&c.MaxSyncSessions,
		"sync.max-sessions",
		c.MaxSyncSessions,
		`
The maximum number of concurrent sync sessions. Starting a session past
the limit fails fast.`,
	)
	fs.DurationVar(
		&c.SessionTimeout,
		"sync.session-timeout",
		c.SessionTimeout,
		`
How long an inactive sync session may live before it is expired.`,
	)
	fs.DurationVar(
		&c.TombstoneRetention,
		"sync.tombstone-retention",
		c.TombstoneRetention,
		`
How long deleted entries are retained as tombstones so the deletion
replicates before garbage collection.`,
	)
	fs.BoolVar(
		&c.MerkleEnabled,
		"sync.merkle-enabled",
		c.MerkleEnabled,
		`
Whether sync sessions compare Merkle roots before exchanging keys. When
disabled sessions exchange the full key list.`,
	)
	fs.IntVar(
		&c.MerkleBranching,
		"sync.merkle-branching",
		c.MerkleBranching,
		`
The fan-out of the Merkle tree over the key space.`,
	)
	fs.StringVar(
		(*string)(&c.DefaultPolicy),
		"sync.default-policy",
		string(c.DefaultPolicy),
		`
The conflict policy for entries written without an explicit one. One of
'lww', 'merge', 'priority' or 'custom'.`,
	)
}

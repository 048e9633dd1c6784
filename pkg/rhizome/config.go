package rhizome

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/vespo92/rhizome/pkg/gossip"
	"github.com/vespo92/rhizome/pkg/statesync"
)

type Config struct {
	// ID is a unique identifier for the node in the cluster.
	//
	// Generated if not given.
	ID string `json:"id" yaml:"id"`

	// HeartbeatInterval is the rate to broadcast heartbeat messages.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// GCInterval is the rate to garbage collect expired entries and
	// tombstones from the state store.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval"`

	Gossip gossip.Config `json:"gossip" yaml:"gossip"`

	Sync statesync.Config `json:"sync" yaml:"sync"`
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: time.Second * 5,
		GCInterval:        time.Minute,
		Gossip:            gossip.DefaultConfig(),
		Sync:              statesync.DefaultConfig(),
	}
}

func (c *Config) Validate() error {
	// Note don't validate node ID, as it will be generated if not given.
	if c.HeartbeatInterval == 0 {
		return fmt.Errorf("missing heartbeat interval")
	}
	if c.GCInterval == 0 {
		return fmt.Errorf("missing gc interval")
	}
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.ID,
		"node.id",
		c.ID,
		`
A unique identifier for the node in the cluster.

Generated if not given.`,
	)
	fs.DurationVar(
		&c.HeartbeatInterval,
		"node.heartbeat-interval",
		c.HeartbeatInterval,
		`
The rate to broadcast heartbeat messages.`,
	)
	fs.DurationVar(
		&c.GCInterval,
		"node.gc-interval",
		c.GCInterval,
		`
The rate to garbage collect expired entries and tombstones from the
state store.`,
	)

	c.Gossip.RegisterFlags(fs)
	c.Sync.RegisterFlags(fs)
}

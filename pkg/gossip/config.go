package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// Strategy selects how messages are disseminated each round.
type Strategy string

const (
	// StrategyPush sends all pending messages to each selected peer.
	StrategyPush Strategy = "push"
	// StrategyPull sends a buffer digest to each selected peer, who
	// responds with the messages the sender is missing.
	StrategyPull Strategy = "pull"
	// StrategyPushPull runs both push and pull.
	StrategyPushPull Strategy = "push-pull"
	// StrategyBimodal multicasts pending messages to a small fixed subset
	// of the selected peers and gossips digests to the remainder, who
	// repair gaps by pulling.
	StrategyBimodal Strategy = "bimodal"
)

type Config struct {
	// Interval is the rate to initiate a gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// AntiEntropyInterval is the rate to initiate an anti-entropy digest
	// exchange with a random peer.
	AntiEntropyInterval time.Duration `json:"anti_entropy_interval" yaml:"anti_entropy_interval"`

	// Strategy is the dissemination strategy.
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Fanout is the maximum number of peers contacted per round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// BimodalMulticastSize is the number of selected peers that receive a
	// reliable multicast under the bimodal strategy. The remainder receive
	// digests only.
	BimodalMulticastSize int `json:"bimodal_multicast_size" yaml:"bimodal_multicast_size"`

	// DefaultTTL is the hop budget stamped on broadcast messages when the
	// caller doesn't give one.
	DefaultTTL int `json:"default_ttl" yaml:"default_ttl"`

	// DefaultExpiry is how long a broadcast message stays valid when the
	// caller doesn't give an expiry.
	DefaultExpiry time.Duration `json:"default_expiry" yaml:"default_expiry"`

	// MaxMessageAge is how long a buffered message is retained before it
	// is garbage collected.
	MaxMessageAge time.Duration `json:"max_message_age" yaml:"max_message_age"`

	// BufferCapacity is the maximum number of buffered messages. The
	// oldest messages are evicted once exceeded.
	BufferCapacity int `json:"buffer_capacity" yaml:"buffer_capacity"`

	// PreferFresh biases peer selection towards peers that have not been
	// contacted recently.
	PreferFresh bool `json:"prefer_fresh" yaml:"prefer_fresh"`

	// QualityWeight is the weight of a peer's quality score during peer
	// selection.
	QualityWeight float64 `json:"quality_weight" yaml:"quality_weight"`

	// PeerTimeout is the silence window after which a peer is pruned.
	PeerTimeout time.Duration `json:"peer_timeout" yaml:"peer_timeout"`

	// MaxPacketSize is the maximum size of any packet sent.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`
}

func DefaultConfig() Config {
	return Config{
		Interval:             time.Second,
		AntiEntropyInterval:  time.Second * 10,
		Strategy:             StrategyPushPull,
		Fanout:               3,
		BimodalMulticastSize: 2,
		DefaultTTL:           8,
		DefaultExpiry:        time.Minute,
		MaxMessageAge:        time.Minute * 5,
		BufferCapacity:       4096,
		PreferFresh:          true,
		QualityWeight:        0.3,
		PeerTimeout:          time.Minute * 2,
		MaxPacketSize:        65507,
	}
}

func (c *Config) Validate() error {
	if c.Interval == 0 {
		return fmt.Errorf("missing interval")
	}
	if c.AntiEntropyInterval == 0 {
		return fmt.Errorf("missing anti-entropy interval")
	}
	switch c.Strategy {
	case StrategyPush, StrategyPull, StrategyPushPull, StrategyBimodal:
	default:
		return fmt.Errorf("unsupported strategy: %s", c.Strategy)
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("missing fanout")
	}
	if c.Strategy == StrategyBimodal && c.BimodalMulticastSize <= 0 {
		return fmt.Errorf("missing bimodal multicast size")
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("missing default ttl")
	}
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("missing buffer capacity")
	}
	if c.MaxPacketSize == 0 {
		return fmt.Errorf("missing max packet size")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(
		&c.Interval,
		"gossip.interval",
		c.Interval,
		`
The interval to initiate rounds of gossip.

Each round selects up to '--gossip.fanout' peers to exchange messages with.`,
	)

	fs.DurationVar(
		&c.AntiEntropyInterval,
		"gossip.anti-entropy-interval",
		c.AntiEntropyInterval,
		`
The interval to initiate anti-entropy digest exchanges.

Each exchange selects one random peer and reconciles message buffers to
repair messages the gossip rounds missed.`,
	)

	fs.StringVar(
		(*string)(&c.Strategy),
		"gossip.strategy",
		string(c.Strategy),
		`
The dissemination strategy. One of 'push', 'pull', 'push-pull' or
'bimodal'.`,
	)

	fs.IntVar(
		&c.Fanout,
		"gossip.fanout",
		c.Fanout,
		`
The maximum number of peers to contact per gossip round.`,
	)

	fs.IntVar(
		&c.BimodalMulticastSize,
		"gossip.bimodal-multicast-size",
		c.BimodalMulticastSize,
		`
The number of selected peers that receive a reliable multicast under the
'bimodal' strategy. The remaining selected peers receive digests only.`,
	)

	fs.IntVar(
		&c.DefaultTTL,
		"gossip.default-ttl",
		c.DefaultTTL,
		`
The hop budget stamped on broadcast messages without an explicit TTL.`,
	)

	fs.DurationVar(
		&c.DefaultExpiry,
		"gossip.default-expiry",
		c.DefaultExpiry,
		`
How long a broadcast message stays valid without an explicit expiry.`,
	)

	fs.DurationVar(
		&c.MaxMessageAge,
		"gossip.max-message-age",
		c.MaxMessageAge,
		`
How long buffered messages are retained before garbage collection.`,
	)

	fs.IntVar(
		&c.BufferCapacity,
		"gossip.buffer-capacity",
		c.BufferCapacity,
		`
The maximum number of buffered messages. The oldest messages are evicted
once the capacity is exceeded.`,
	)

	fs.BoolVar(
		&c.PreferFresh,
		"gossip.prefer-fresh",
		c.PreferFresh,
		`
Whether peer selection is biased towards peers that have not been
contacted recently.`,
	)

	fs.Float64Var(
		&c.QualityWeight,
		"gossip.quality-weight",
		c.QualityWeight,
		`
The weight of a peer's quality score during peer selection.`,
	)

	fs.DurationVar(
		&c.PeerTimeout,
		"gossip.peer-timeout",
		c.PeerTimeout,
		`
The silence window after which an inactive peer is pruned.`,
	)

	fs.IntVar(
		&c.MaxPacketSize,
		"gossip.max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any packet sent.

Depending on your networks MTU you may be able to increase to include more
data in each packet.`,
	)
}

package node

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/vespo92/rhizome/pkg/log"
	"github.com/vespo92/rhizome/pkg/rhizome"
)

type ClusterConfig struct {
	// BindAddr is the address to bind to listen for gossip packets.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	//
	// Derived from the bind address if not given.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Join is a list of cluster members to join, each of form
	// '<node id>@<host>:<port>'.
	Join []string `json:"join" yaml:"join"`

	// AuthKey is the shared key used to sign and verify gossip message
	// payloads. Messages are unsigned when empty.
	AuthKey string `json:"auth_key" yaml:"auth_key"`
}

func (c *ClusterConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	for _, member := range c.Join {
		if _, _, err := splitMember(member); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClusterConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"cluster.bind-addr",
		c.BindAddr,
		`
The host/port to bind to listen for gossip packets.

If the host is unspecified it defaults to all listeners, such as
'--cluster.bind-addr :7470' will listen on '0.0.0.0:7470'.`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"cluster.advertise-addr",
		c.AdvertiseAddr,
		`
The address to advertise to other nodes in the cluster.

Such as if the bind address is ':7470', the advertised address may be
'10.26.104.45:7470' or 'node1.cluster:7470'.

By default, the node will hide advertise its private IP if the bind
address is all interfaces.`,
	)
	fs.StringSliceVar(
		&c.Join,
		"cluster.join",
		c.Join,
		`
A list of cluster members to join, each of form '<node id>@<host>:<port>',
such as '--cluster.join node-1@10.26.104.14:7470,node-2@10.26.104.75:7470'.`,
	)
	fs.StringVar(
		&c.AuthKey,
		"cluster.auth-key",
		c.AuthKey,
		`
The shared key used to sign and verify gossip message payloads.

All nodes in the cluster must share the same key. If empty, messages are
not signed.`,
	)
}

type AdminConfig struct {
	// BindAddr is the address to bind the admin HTTP server.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *AdminConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"admin.bind-addr",
		c.BindAddr,
		`
The host/port to bind the admin HTTP server, exposing metrics, health
and node status.`,
	)
}

type Config struct {
	Node rhizome.Config `json:"node" yaml:"node"`

	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`

	Admin AdminConfig `json:"admin" yaml:"admin"`

	Log log.Config `json:"log" yaml:"log"`
}

func (c *Config) Default() {
	c.Node = rhizome.DefaultConfig()
	c.Cluster.BindAddr = ":7470"
	c.Admin.BindAddr = ":7471"
	c.Log.Default()
}

func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Node.RegisterFlags(fs)
	c.Cluster.RegisterFlags(fs)
	c.Admin.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)
}

// splitMember parses a '<node id>@<host>:<port>' cluster member.
func splitMember(member string) (string, string, error) {
	id, addr, ok := strings.Cut(member, "@")
	if !ok || id == "" || addr == "" {
		return "", "", fmt.Errorf(
			"invalid member, expected '<node id>@<host>:<port>': %s", member,
		)
	}
	return id, addr, nil
}

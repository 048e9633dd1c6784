package cli

import (
	"github.com/spf13/cobra"

	"github.com/vespo92/rhizome/cli/node"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "rhizome [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Rhizome is an epidemic dissemination and state replication
engine.

Each node gossips messages to a bounded fan-out of peers every round,
so broadcasts reach the whole cluster with high probability in
logarithmic rounds. A replicated key-value store rides on top: local
writes produce deltas that gossip to every peer, with vector clocks and
conflict policies resolving concurrent updates, and Merkle-digest
anti-entropy repairing anything the rounds missed.

Start a node with:

  $ rhizome node

Then join further nodes to the cluster with:

  $ rhizome node --cluster.join node-1@10.26.104.14:7470
`,
	}

	cmd.AddCommand(node.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}

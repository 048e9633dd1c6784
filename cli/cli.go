// Package cli contains the rhizome command line interface.
package cli

// Start runs the root command.
func Start() error {
	return NewCommand().Execute()
}

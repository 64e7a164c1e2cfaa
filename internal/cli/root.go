// Package cli wires the meowstore command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Version  string
	LogLevel string
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "meowstore",
		Short:         "meowstore - indexed user and project store",
		Long:          "A persistent store for platform users and projects, served over HTTP and fed by a crawler.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides config")

	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewGenConfigCommand(opts))
	cmd.AddCommand(NewCrawlerCommand(opts))

	return cmd
}

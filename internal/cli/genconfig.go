package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"meowstore/pkg/config"
)

// Default file names written by gen-config.
const (
	RunConfigFile     = "db_run.yaml"
	CreateConfigFile  = "db_create.yaml"
	CrawlerConfigFile = "crawler.yaml"
)

// NewGenConfigCommand creates the gen-config command.
func NewGenConfigCommand(_ *RootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "gen-config",
		Short: "Write default config files",
		Long: `Write db_run.yaml, db_create.yaml and crawler.yaml with default values.

Existing files are never overwritten.

Example:
  meowstore gen-config -p .`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := []struct {
				name string
				v    any
			}{
				{RunConfigFile, config.DefaultRunConfig()},
				{CreateConfigFile, config.DefaultCreateConfig()},
				{CrawlerConfigFile, config.DefaultCrawlerConfig()},
			}
			for _, f := range files {
				p := filepath.Join(dir, f.name)
				if err := config.WriteNew(p, f.v); err != nil {
					return WrapExitError(ExitCommandError, "failed to write "+f.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "path", "p", ".", "directory to write into")
	return cmd
}

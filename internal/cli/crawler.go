package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"meowstore/pkg/config"
	"meowstore/pkg/crawler"
	"meowstore/pkg/logger"
	"meowstore/pkg/state/shutdown"
)

// NewCrawlerCommand groups the crawler commands.
func NewCrawlerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Feed a running deployment from the platform API",
	}
	cmd.AddCommand(newCrawlerRunCommand(rootOpts))
	return cmd
}

func newCrawlerRunCommand(rootOpts *RootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl users breadth-first from the initial user",
		Long: `Crawl the platform breadth-first starting at initial_user and write
every user and project into the store at db_url.

Example:
  meowstore crawler run -c crawler.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCrawlerConfig(path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load crawler config", err)
			}
			config.ApplyCrawlerEnv(cfg)
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "invalid crawler config", err)
			}

			logger.Init(rootOpts.LogLevel)
			defer logger.Sync()

			ctx, cancel := shutdown.SetupSignalHandler(cmd.Context())
			defer cancel()

			stats, err := crawler.New(cfg, crawler.Options{}).Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "users: %d, projects: %d, skipped: %d\n", stats.Users, stats.Projects, stats.Skipped)
			if err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitFailure, "crawl stopped", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to the crawler config (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"meowstore/internal/app"
	"meowstore/pkg/config"
	"meowstore/pkg/db"
	"meowstore/pkg/logger"
	"meowstore/pkg/search"
	"meowstore/pkg/state"
	"meowstore/pkg/state/shutdown"
)

const shutdownTimeout = 20 * time.Second

// NewDBCommand groups the deployment commands.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Create, run and administer a deployment",
	}
	cmd.AddCommand(newDBCreateCommand(rootOpts))
	cmd.AddCommand(newDBRunCommand(rootOpts))
	cmd.AddCommand(newDBGenKeyCommand(rootOpts))
	return cmd
}

type deploymentFlags struct {
	Config string
	Path   string
}

func newDBCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &deploymentFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Initialize a deployment directory",
		Long: `Initialize a deployment directory from a create config.

The config is copied into the deployment and fixes which operations need
an access key for the deployment's lifetime.

Example:
  meowstore db create -c db_create.yaml -p ./db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(rootOpts.LogLevel)
			defer logger.Sync()

			_, raw, err := config.LoadCreateConfig(opts.Config)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load create config", err)
			}
			if err := state.Create(opts.Path, raw); err != nil {
				return WrapExitError(ExitCommandError, "failed to create deployment", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created deployment at %s\n", opts.Path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the create config (required)")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "deployment directory (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newDBRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &deploymentFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve a deployment over HTTP",
		Long: `Open a deployment and serve it over HTTP until interrupted.

The deployment's status marker selects the open mode: a freshly created
deployment is initialized, an existing one is reopened. MEOWSTORE_*
environment variables override values from the run config.

Example:
  meowstore db run -c db_run.yaml -p ./db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(opts.Config)
			if err != nil {
				return err
			}

			level := cfg.Logging.Level
			if rootOpts.LogLevel != "" {
				level = rootOpts.LogLevel
			}
			logger.Init(level)
			defer logger.Sync()
			logger.Info("run_config_loaded", "path", opts.Config, "addr", cfg.Addr(), "search", cfg.Search.Endpoint)

			a, err := app.New(opts.Path, cfg, app.Options{Version: rootOpts.Version})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open deployment", err)
			}

			ctx, cancel := shutdown.SetupSignalHandler(cmd.Context())
			defer cancel()

			runErr := a.Run(ctx)

			// bounded so teardown cannot hang forever
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := a.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown_failed", "error", err)
			}
			if runErr != nil {
				return WrapExitError(ExitFailure, "server stopped", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to the run config (required)")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "deployment directory (required)")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func loadRunConfig(path string) (*config.RunConfig, error) {
	cfg, err := config.LoadRunConfig(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load run config", err)
	}
	config.ApplyRunEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid run config", err)
	}
	return cfg, nil
}

type genKeyOptions struct {
	deploymentFlags
	Read   bool
	Write  bool
	Remove bool
}

func (o *genKeyOptions) permission() db.Permission {
	var p db.Permission
	if o.Read {
		p |= db.PermRead
	}
	if o.Write {
		p |= db.PermWrite
	}
	if o.Remove {
		p |= db.PermRemove
	}
	return p
}

func newDBGenKeyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &genKeyOptions{}
	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Issue an access key",
		Long: `Issue an access key with the selected permissions and print it.

The deployment must not be served while a key is issued. Without a run
config the search mirror is not contacted.

Example:
  meowstore db gen-key --write --remove -p ./db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			perm := opts.permission()
			if perm == 0 {
				return WrapExitError(ExitCommandError, "no permission selected", fmt.Errorf("pass at least one of --read, --write, --remove"))
			}

			cfg := config.DefaultRunConfig()
			cfg.Search.Endpoint = search.MemoryEndpoint
			if opts.Config != "" {
				var err error
				if cfg, err = loadRunConfig(opts.Config); err != nil {
					return err
				}
			}
			cfg.Maintenance.Enabled = false

			logger.Init(rootOpts.LogLevel)
			defer logger.Sync()

			a, err := app.New(opts.Path, cfg, app.Options{Version: rootOpts.Version, Registry: prometheus.NewRegistry()})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open deployment", err)
			}
			key, keyErr := a.Store().GenerateKey(cmd.Context(), perm)
			if err := a.Shutdown(context.Background()); err != nil && keyErr == nil {
				keyErr = err
			}
			if keyErr != nil {
				return WrapExitError(ExitFailure, "failed to issue key", keyErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", key.String())
			logger.Info("key_issued", "permission", perm.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "optional run config for the search mirror")
	cmd.Flags().StringVarP(&opts.Path, "path", "p", "", "deployment directory (required)")
	cmd.Flags().BoolVar(&opts.Read, "read", false, "allow reads and searches")
	cmd.Flags().BoolVar(&opts.Write, "write", false, "allow writes")
	cmd.Flags().BoolVar(&opts.Remove, "remove", false, "allow removals")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

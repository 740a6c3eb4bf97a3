// Package cli implements the castbot command line: the daemon and the
// offline job management commands that operate on the store directly.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"castbot/internal/app"
	"castbot/internal/config"
	"castbot/pkg/logx"
)

const defaultConfigPath = "./config.json"

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "castbot",
		Short: "Scheduled multi-target broadcasts for Telegram",
		Long: `castbot delivers scheduled posts to many Telegram chats at once.

Run the daemon:
  castbot serve --config ./config.yaml

Schedule a post from the shell:
  castbot schedule --target -1001234567890:main --target @news \
    --text "<b>Hello</b>" --at "2025-06-01 09:00" --repeat daily --limit 7

Job commands open the store directly. With the file driver only one
process may write, so stop the daemon before changing jobs offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", defaultConfigPath, "config file (json or yaml)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newServeCmd(o),
		newScheduleCmd(o),
		newJobsCmd(o),
		newBackupCmd(o),
		newConfigCmd(o),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// loadConfig reads the config file with .env and environment overrides on top.
func (o *rootOptions) loadConfig() (*config.Manager, *config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	env, err := config.ReadEnv()
	if err != nil {
		return nil, nil, err
	}
	m := config.NewManager(o.configPath)
	m.SetEnv(env)
	cfg, err := m.Load()
	if err != nil {
		return nil, nil, err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	return m, cfg, nil
}

// openCore loads config and opens the job store for an offline command.
func (o *rootOptions) openCore(cmd *cobra.Command) (*app.Core, error) {
	_, cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.openCoreFrom(cmd, cfg)
}

func (o *rootOptions) openCoreFrom(cmd *cobra.Command, cfg *config.Config) (*app.Core, error) {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return app.OpenCore(cfg, logx.NewWriter(cmd.ErrOrStderr(), level))
}

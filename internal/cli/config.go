package cli

import (
	"github.com/spf13/cobra"

	"castbot/internal/config"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config file utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the config and print the effective values",
		Long: `Load the config file with .env and CASTBOT_* overrides applied, validate
it and print the result as JSON. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), redact(*cfg))
		},
	})
	return cmd
}

func redact(cfg config.Config) config.Config {
	if cfg.Telegram.Token != "" {
		cfg.Telegram.Token = "***"
	}
	if cfg.Ops.Token != "" {
		cfg.Ops.Token = "***"
	}
	return cfg
}

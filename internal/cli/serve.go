package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"castbot/internal/app"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher daemon",
		Long: `Run the scheduler, the fan-out engine, the owner notifier and the
maintenance jobs until SIGINT or SIGTERM. The config file is watched and
reloaded in place; token, storage and ops changes need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, _, err := o.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(m, app.Options{})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Start(ctx); err != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = a.Stop(stopCtx, app.StopFatal)
				return fmt.Errorf("start: %w", err)
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatal
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			stopErr := a.Stop(stopCtx, reason)
			if reason == app.StopFatal {
				if err := a.Err(); err != nil {
					return err
				}
			}
			return stopErr
		},
	}
}

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"castbot/internal/config"
	"castbot/internal/schedule"
)

func newJobsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and change scheduled jobs",
		Long: `Inspect and change scheduled jobs.

Examples:
  castbot jobs list --status pending
  castbot jobs get <id>
  castbot jobs cancel <id>
  castbot jobs reschedule <id> --at "2025-06-02 10:00"
  castbot jobs cleanup --older-than 720h`,
	}
	cmd.AddCommand(
		newJobsListCmd(o),
		newJobsUpcomingCmd(o),
		newJobsGetCmd(o),
		newJobsCancelCmd(o),
		newJobsRescheduleCmd(o),
		newJobsStatsCmd(o),
		newJobsExportCmd(o),
		newJobsCleanupCmd(o),
	)
	return cmd
}

func newJobsListCmd(o *rootOptions) *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, earliest trigger first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := make([]schedule.Status, 0, len(statuses))
			for _, s := range statuses {
				st, err := schedule.ParseStatus(s)
				if err != nil {
					return err
				}
				filter = append(filter, st)
			}
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			jobs, err := core.Scheduler.List(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			return writeSummaries(cmd.OutOrStdout(), jobs, core.Location)
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "filter by status (repeatable or comma separated)")
	return cmd
}

func newJobsUpcomingCmd(o *rootOptions) *cobra.Command {
	var within time.Duration
	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List pending jobs due within a window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			jobs, err := core.Scheduler.Upcoming(cmd.Context(), within)
			if err != nil {
				return err
			}
			return writeSummaries(cmd.OutOrStdout(), jobs, core.Location)
		},
	}
	cmd.Flags().DurationVar(&within, "within", 24*time.Hour, "look-ahead window")
	return cmd
}

func newJobsGetCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			job, err := core.Scheduler.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobsCancelCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			ok, err := core.Scheduler.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job %s is not pending", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func newJobsRescheduleCmd(o *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "reschedule <id>",
		Short: "Move a pending job to a new trigger time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			t, err := parseTime(at, core.Location)
			if err != nil {
				return err
			}
			ok, err := core.Scheduler.Reschedule(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("job %s is not pending", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rescheduled %s to %s\n", args[0], t.In(core.Location).Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "new trigger time")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newJobsStatsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print job counters as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			st, err := core.Scheduler.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newJobsExportCmd(o *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every job as a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := o.openCore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			if out == "" || out == "-" {
				return core.Scheduler.Export(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := core.Scheduler.Export(cmd.Context(), f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newJobsCleanupCmd(o *rootOptions) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete completed and failed jobs older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			raw := olderThan
			if raw == "" {
				raw = cfg.Maintenance.Retention
			}
			d, err := config.ParseDurationField("older-than", raw)
			if err != nil {
				return err
			}
			if d <= 0 {
				return errors.New("older-than must be positive")
			}

			core, err := o.openCoreFrom(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			n, err := core.Scheduler.Cleanup(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d jobs\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "", "age threshold (default maintenance.retention)")
	return cmd
}

func writeSummaries(w io.Writer, jobs []schedule.JobSummary, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRIGGER\tSTATUS\tREPEAT\tRUNS\tTARGETS")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\n",
			j.ID, j.TriggerTime.In(loc).Format("2006-01-02 15:04"), j.Status, j.Repeat,
			j.ExecutedCount, j.RepeatLimit, j.TargetCount)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package config

import (
	"slices"

	"castbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns log fields describing the new values. Secrets are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram.token")
	}
	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL ||
		oldCfg.Telegram.ParseMode != newCfg.Telegram.ParseMode ||
		!slices.Equal(oldCfg.Telegram.OwnerIDs, newCfg.Telegram.OwnerIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerIDs)),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.check_interval", newCfg.Scheduler.CheckInterval),
			logx.Int("scheduler.max_pending_jobs", newCfg.Scheduler.MaxPendingJobs),
			logx.Int("scheduler.max_targets_per_job", newCfg.Scheduler.MaxTargetsPerJob),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.delay_between_sends", newCfg.Broadcast.DelayBetweenSends),
			logx.Int("broadcast.retry_max", newCfg.Broadcast.RetryMax),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Bool("notifier.enabled", newCfg.Notifier.Enabled))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.cleanup_enabled", newCfg.Maintenance.CleanupEnabled),
			logx.Bool("maintenance.backup_enabled", newCfg.Maintenance.BackupEnabled),
		)
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
	}
	return changed, attrs
}

// RestartRequired reports changes a running process cannot apply in place.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "telegram.token", "storage", "ops":
			out = append(out, c)
		}
	}
	return out
}

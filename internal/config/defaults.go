package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultCheckInterval     = 30 * time.Second
	DefaultDelayBetweenSends = 2 * time.Second
	DefaultSendTimeout       = 30 * time.Second
	DefaultRetryDelay        = 2 * time.Second
	DefaultMaxTargetsPerJob  = 50
	DefaultMaxPendingJobs    = 100
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultCleanupSpec       = "@daily"
	DefaultBackupSpec        = "@every 24h"
	DefaultBackupDir         = "./backups"
	DefaultBackupKeep        = 7
	DefaultStoragePath       = "./data/castbot.json"
	DefaultOpsAddr           = "127.0.0.1:9465"
)

// Default returns a config that runs as-is once a token is supplied.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{PollTimeout: "30s", ParseMode: "HTML"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{
			CheckInterval:    DefaultCheckInterval.String(),
			MaxPendingJobs:   DefaultMaxPendingJobs,
			MaxTargetsPerJob: DefaultMaxTargetsPerJob,
			Timezone:         "UTC",
		},
		Broadcast: BroadcastConfig{
			DelayBetweenSends: DefaultDelayBetweenSends.String(),
			SendTimeout:       DefaultSendTimeout.String(),
			RetryMax:          2,
			RetryDelay:        DefaultRetryDelay.String(),
		},
		Notifier: NotifierConfig{Enabled: true, RatePerSec: 1, RetryMax: 2},
		Storage:  StorageConfig{Driver: "file", Path: DefaultStoragePath},
		Maintenance: MaintenanceConfig{
			CleanupSpec: DefaultCleanupSpec,
			Retention:   "720h",
			BackupSpec:  DefaultBackupSpec,
			BackupDir:   DefaultBackupDir,
			BackupKeep:  DefaultBackupKeep,

			BackupCompression: "gzip",
		},
		Ops: OpsConfig{Addr: DefaultOpsAddr},
	}
}

// Validate checks every field that would otherwise fail at wiring time.
// All problems are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	check := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	check("telegram.poll_timeout", c.Telegram.PollTimeout)
	check("scheduler.check_interval", c.Scheduler.CheckInterval)
	check("broadcast.delay_between_sends", c.Broadcast.DelayBetweenSends)
	check("broadcast.send_timeout", c.Broadcast.SendTimeout)
	check("broadcast.retry_delay", c.Broadcast.RetryDelay)
	check("notifier.retry_delay", c.Notifier.RetryDelay)
	check("storage.busy_timeout", c.Storage.BusyTimeout)
	check("maintenance.retention", c.Maintenance.Retention)

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Maintenance.BackupCompression {
	case "", "gzip", "zstd":
	default:
		errs = append(errs, fmt.Errorf("maintenance.backup_compression: unknown %q", c.Maintenance.BackupCompression))
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Scheduler.MaxPendingJobs < 0 {
		errs = append(errs, errors.New("scheduler.max_pending_jobs: must be >= 0"))
	}
	if c.Scheduler.MaxTargetsPerJob < 0 {
		errs = append(errs, errors.New("scheduler.max_targets_per_job: must be >= 0"))
	}
	if c.Broadcast.RetryMax < 0 || c.Notifier.RetryMax < 0 {
		errs = append(errs, errors.New("retry_max: must be >= 0"))
	}
	if c.Broadcast.RatePerSec < 0 || c.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("rate_per_sec: must be >= 0"))
	}
	for _, id := range c.Telegram.OwnerIDs {
		if id == 0 {
			errs = append(errs, errors.New("telegram.owner_ids: zero id"))
			break
		}
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

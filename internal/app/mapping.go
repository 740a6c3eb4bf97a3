package app

import (
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/maintenance"
	"castbot/internal/notifier"
	"castbot/internal/observability/ops"
	"castbot/internal/scheduler"
	"castbot/internal/storage"
	"castbot/internal/transport/telegram"
	"castbot/pkg/logx"
)

// The mappers below assume cfg passed config.Validate, so duration parse
// errors cannot happen here and fall back to defaults.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = config.DefaultStoragePath
	}
	return storage.Config{Driver: cfg.Storage.Driver, Path: path, BusyTimeout: busy}
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		CheckInterval:    config.MustDuration(cfg.Scheduler.CheckInterval, config.DefaultCheckInterval),
		MaxPendingJobs:   cfg.Scheduler.MaxPendingJobs,
		MaxTargetsPerJob: cfg.Scheduler.MaxTargetsPerJob,
	}
}

func mapBroadcast(cfg *config.Config) broadcast.Config {
	delay, _ := config.ParseDurationField("broadcast.delay_between_sends", cfg.Broadcast.DelayBetweenSends)
	timeout, _ := config.ParseDurationField("broadcast.send_timeout", cfg.Broadcast.SendTimeout)
	return broadcast.Config{
		Delay:       delay,
		SendTimeout: timeout,
		RetryMax:    cfg.Broadcast.RetryMax,
		RetryDelay:  config.MustDuration(cfg.Broadcast.RetryDelay, config.DefaultRetryDelay),
		RatePerSec:  cfg.Broadcast.RatePerSec,
	}
}

func mapNotifier(cfg *config.Config, loc *time.Location) notifier.Config {
	return notifier.Config{
		Enabled:    cfg.Notifier.Enabled,
		OwnerIDs:   cfg.Telegram.OwnerIDs,
		RatePerSec: cfg.Notifier.RatePerSec,
		RetryMax:   cfg.Notifier.RetryMax,
		RetryDelay: config.MustDuration(cfg.Notifier.RetryDelay, config.DefaultRetryDelay),
		Location:   loc,
	}
}

func mapMaintenance(cfg *config.Config, loc *time.Location) maintenance.Config {
	m := cfg.Maintenance
	return maintenance.Config{
		CleanupEnabled: m.CleanupEnabled,
		CleanupSpec:    m.CleanupSpec,
		Retention:      config.MustDuration(m.Retention, config.DefaultRetention),
		BackupEnabled:  m.BackupEnabled,
		BackupSpec:     m.BackupSpec,
		BackupDir:      m.BackupDir,
		BackupKeep:     m.BackupKeep,
		Compression:    maintenance.Compression(m.BackupCompression),
		Location:       loc,
	}
}

func mapOps(cfg *config.Config) ops.Config {
	return ops.Config{
		Addr:           cfg.Ops.Addr,
		MetricsEnabled: cfg.Ops.MetricsEnabled,
		PprofEnabled:   cfg.Ops.PprofEnabled,
		Token:          cfg.Ops.Token,
	}
}

func mapTelegram(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:          cfg.Telegram.Token,
		APIURL:         cfg.Telegram.APIURL,
		RequestTimeout: config.MustDuration(cfg.Telegram.PollTimeout, 30*time.Second),
	}
}

func location(cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

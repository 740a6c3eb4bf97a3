package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("30s", "2m", "720h").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Broadcast   BroadcastConfig   `json:"broadcast"`
	Notifier    NotifierConfig    `json:"notifier"`
	Storage     StorageConfig     `json:"storage"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Ops         OpsConfig         `json:"ops"`
}

type TelegramConfig struct {
	Token    string  `json:"token"`
	OwnerIDs []int64 `json:"owner_ids"`
	// APIURL points at a self-hosted Bot API server; empty uses the public one.
	APIURL string `json:"api_url,omitempty"`
	// PollTimeout doubles as the HTTP request timeout of the bot client.
	PollTimeout string `json:"poll_timeout"`
	// ParseMode is applied to posts that do not set their own.
	ParseMode string `json:"parse_mode,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type SchedulerConfig struct {
	CheckInterval    string `json:"check_interval"`
	MaxPendingJobs   int    `json:"max_pending_jobs"`
	MaxTargetsPerJob int    `json:"max_targets_per_job"`
	// Timezone is used to read local times given on the CLI and to render
	// times in reports. Stored times are always UTC instants.
	Timezone string `json:"timezone,omitempty"`
}

type BroadcastConfig struct {
	DelayBetweenSends string  `json:"delay_between_sends"`
	SendTimeout       string  `json:"send_timeout"`
	RetryMax          int     `json:"retry_max"`
	RetryDelay        string  `json:"retry_delay"`
	RatePerSec        float64 `json:"rate_per_sec"`
}

type NotifierConfig struct {
	Enabled    bool    `json:"enabled"`
	RatePerSec float64 `json:"rate_per_sec"`
	RetryMax   int     `json:"retry_max"`
	RetryDelay string  `json:"retry_delay,omitempty"`
}

// StorageConfig selects the job store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/castbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type MaintenanceConfig struct {
	CleanupEnabled bool   `json:"cleanup_enabled"`
	CleanupSpec    string `json:"cleanup_spec,omitempty"`
	Retention      string `json:"retention,omitempty"`

	BackupEnabled bool   `json:"backup_enabled"`
	BackupSpec    string `json:"backup_spec,omitempty"`
	BackupDir     string `json:"backup_dir,omitempty"`
	BackupKeep    int    `json:"backup_keep,omitempty"`
	// BackupCompression is "gzip" (default) or "zstd".
	BackupCompression string `json:"backup_compression,omitempty"`
}

// OpsConfig controls the operational HTTP listener (/healthz, /metrics).
// Prefer a loopback address.
type OpsConfig struct {
	Enabled        bool   `json:"enabled"`
	Addr           string `json:"addr,omitempty"`
	MetricsEnabled bool   `json:"metrics_enabled"`
	PprofEnabled   bool   `json:"pprof_enabled,omitempty"`
	Token          string `json:"token,omitempty"` // never logged
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestParseJSONOverDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"telegram": {"token": "123:abc", "owner_ids": [42]},
		"scheduler": {"check_interval": "10s", "timezone": "Asia/Jakarta"},
		"storage": {"driver": "sqlite", "path": "jobs.db"}
	}`)

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, []int64{42}, cfg.Telegram.OwnerIDs)
	assert.Equal(t, "10s", cfg.Scheduler.CheckInterval)
	assert.Equal(t, DefaultMaxTargetsPerJob, cfg.Scheduler.MaxTargetsPerJob)
	assert.Equal(t, "2s", cfg.Broadcast.DelayBetweenSends)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
telegram:
  token: "123:abc"
  owner_ids: [1, 2]
broadcast:
  delay_between_sends: 500ms
  rate_per_sec: 20
maintenance:
  backup_enabled: true
`)
	cfg, err := NewManager(path).Parse()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.OwnerIDs)
	assert.Equal(t, "500ms", cfg.Broadcast.DelayBetweenSends)
	assert.InDelta(t, 20.0, cfg.Broadcast.RatePerSec, 0.001)
	assert.True(t, cfg.Maintenance.BackupEnabled)
	assert.Equal(t, DefaultBackupSpec, cfg.Maintenance.BackupSpec)
}

func TestParseEmptyYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "")
	cfg, err := NewManager(path).Parse()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"scheduler": {"check_intervall": "10s"}}`)
	_, err := NewManager(path).Parse()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{} {}`)
	_, err := NewManager(path).Parse()
	require.Error(t, err)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := NewManager(filepath.Join(t.TempDir(), "nope.json")).Parse()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Scheduler.CheckInterval = "soon"
	cfg.Broadcast.RetryDelay = "-1s"
	cfg.Storage.Driver = "postgres"
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"scheduler.check_interval", "broadcast.retry_delay", "storage.driver", "scheduler.timezone", "logging.level"} {
		assert.Contains(t, err.Error(), want)
	}
	require.NoError(t, Default().Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CASTBOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("CASTBOT_OWNER_IDS", "7,8")
	t.Setenv("CASTBOT_STORAGE_PATH", "/var/lib/castbot/jobs.json")

	o, err := ReadEnv()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"telegram": {"token": "file-token"}, "logging": {"level": "debug"}}`)
	m := NewManager(path)
	m.SetEnv(o)
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, []int64{7, 8}, cfg.Telegram.OwnerIDs)
	assert.Equal(t, "/var/lib/castbot/jobs.json", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level, "unset env keeps file value")
}

func TestDurations(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDurationField("x", "-1s")
	require.Error(t, err)

	assert.Equal(t, time.Second, MustDuration("bogus", time.Second))
}

func TestDurationDays(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want time.Duration
		ok   bool
	}{
		{"30d", 720 * time.Hour, true},
		{"1d12h", 36 * time.Hour, true},
		{"0d", 0, true},
		{"-1d", 0, false},
		{"xd", 0, false},
		{"1d1x", 0, false},
		{"999999999d", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("maintenance.retention", tt.raw)
		if !tt.ok {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Telegram.Token = "secret"
	b.Scheduler.CheckInterval = "5s"
	b.Storage.Path = "elsewhere.json"

	changed, attrs := SummarizeChange(a, b)
	assert.Equal(t, []string{"telegram.token", "scheduler", "storage"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"telegram.token", "storage"}, RestartRequired(changed))

	changed, _ = SummarizeChange(a, Default())
	assert.Empty(t, changed)
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"scheduler": {"check_interval": "30s"}}`)

	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	t.Cleanup(func() { m.Unsubscribe(sub) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register the directory.
	var got *Config
	require.Eventually(t, func() bool {
		writeFile(t, path, `{"scheduler": {"check_interval": "5s"}}`)
		select {
		case got = <-sub:
			return true
		case <-time.After(300 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "5s", got.Scheduler.CheckInterval)
	assert.Equal(t, "5s", m.Get().Scheduler.CheckInterval)

	// Invalid content is rejected and the committed config stays.
	writeFile(t, path, `{"scheduler": {"check_interval": "nope"}}`)
	select {
	case <-sub:
		t.Fatal("invalid config must not be published")
	case <-time.After(600 * time.Millisecond):
	}
	assert.Equal(t, "5s", m.Get().Scheduler.CheckInterval)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join("..", "..", "config.example.yaml"))
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "HTML", cfg.Telegram.ParseMode)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 7, cfg.Maintenance.BackupKeep)
	assert.False(t, cfg.Ops.Enabled)
}

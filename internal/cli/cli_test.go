package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/schedule"
	"castbot/internal/transport"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"telegram":    map[string]any{"token": "123:secret", "owner_ids": []int64{1}},
		"logging":     map[string]any{"level": "error"},
		"scheduler":   map[string]any{"timezone": "UTC"},
		"storage":     map[string]any{"driver": "file", "path": filepath.Join(dir, "jobs.json")},
		"maintenance": map[string]any{"backup_dir": filepath.Join(dir, "backups"), "backup_keep": 2, "backup_compression": "zstd"},
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path, dir
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScheduleListGetCancel(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	at := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)

	out, err := run(t, cfgPath, "schedule",
		"--target", "-1001234567890:main", "--target", "@news",
		"--text", "<b>hi</b>", "--at", at,
		"--repeat", "daily", "--limit", "3",
		"--photo", "https://example.com/a.jpg",
		"--button", "Open|https://example.com")
	require.NoError(t, err)
	id := strings.Fields(out)[0]
	require.NotEmpty(t, id)

	out, err = run(t, cfgPath, "jobs", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "0/3")

	out, err = run(t, cfgPath, "jobs", "get", id)
	require.NoError(t, err)
	var job schedule.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, schedule.RepeatDaily, job.Repeat)
	require.Len(t, job.Targets, 2)
	assert.Equal(t, "main", job.Targets[0].Label)

	post, err := transport.DecodePost(job.Content)
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", post.Text)
	require.Len(t, post.Media, 1)
	assert.Equal(t, "https://example.com/a.jpg", post.Media[0].URL)
	require.Len(t, post.Buttons, 1)
	assert.Equal(t, "Open", post.Buttons[0][0].Text)

	_, err = run(t, cfgPath, "jobs", "cancel", id)
	require.NoError(t, err)
	_, err = run(t, cfgPath, "jobs", "cancel", id)
	assert.Error(t, err)

	out, err = run(t, cfgPath, "jobs", "stats")
	require.NoError(t, err)
	var st schedule.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Cancelled)
	assert.Equal(t, 0, st.Pending)
}

func TestScheduleRejectsBadInput(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	_, err := run(t, cfgPath, "schedule", "--target", "not-a-chat", "--text", "x", "--at", at)
	assert.Error(t, err)

	_, err = run(t, cfgPath, "schedule", "--target", "@news", "--at", at)
	assert.ErrorIs(t, err, transport.ErrInvalidPost)

	_, err = run(t, cfgPath, "schedule", "--target", "@news", "--text", "x", "--at", "tomorrow")
	assert.Error(t, err)

	_, err = run(t, cfgPath, "schedule", "--target", "@news", "--text", "x", "--at", at, "--button", "no-url")
	assert.Error(t, err)
}

func TestReschedule(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := run(t, cfgPath, "schedule", "--target", "@news", "--text", "x", "--at", "2030-01-02 10:00")
	require.NoError(t, err)
	id := strings.Fields(out)[0]

	_, err = run(t, cfgPath, "jobs", "reschedule", id, "--at", "2030-01-03 11:30")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "jobs", "get", id)
	require.NoError(t, err)
	var job schedule.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.True(t, job.TriggerTime.Equal(time.Date(2030, 1, 3, 11, 30, 0, 0, time.UTC)))
}

func TestBackupNowListShow(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	_, err := run(t, cfgPath, "schedule", "--target", "@news", "--text", "x", "--at", "2030-01-02 10:00")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "backup", "now")
	require.NoError(t, err)
	file := strings.TrimSpace(out)
	assert.True(t, strings.HasSuffix(file, ".json.zst"))

	out, err = run(t, cfgPath, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, file)

	out, err = run(t, cfgPath, "backup", "show", file)
	require.NoError(t, err)
	assert.Contains(t, out, "@news")
}

func TestExportToFile(t *testing.T) {
	cfgPath, dir := writeTestConfig(t)
	_, err := run(t, cfgPath, "schedule", "--target", "@news", "--text", "x", "--at", "2030-01-02 10:00")
	require.NoError(t, err)

	dst := filepath.Join(dir, "export.json")
	_, err = run(t, cfgPath, "jobs", "export", "-o", dst)
	require.NoError(t, err)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(b), "@news")
}

func TestConfigCheckMasksSecrets(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	out, err := run(t, cfgPath, "config", "check")
	require.NoError(t, err)
	assert.NotContains(t, out, "123:secret")
	assert.Contains(t, out, `"token": "***"`)
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)

	got, err := parseTime("2025-06-01 09:00", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC), got.UTC())

	got, err = parseTime("2025-06-01T09:00:00Z", loc)
	require.NoError(t, err)
	assert.Equal(t, 9, got.UTC().Hour())

	_, err = parseTime("06/01/2025", loc)
	assert.Error(t, err)
}

func TestParseTargets(t *testing.T) {
	got, err := parseTargets([]string{"-1001/7:support", "@news"})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Target{{ID: "-1001/7", Label: "support"}, {ID: "@news"}}, got)

	_, err = parseTargets([]string{"@"})
	assert.Error(t, err)
}

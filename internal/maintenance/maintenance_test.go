package maintenance

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/pkg/logx"
)

type fakeJobs struct {
	mu        sync.Mutex
	retention []time.Duration
	exports   atomic.Int32
	failWith  error
}

func (f *fakeJobs) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retention = append(f.retention, olderThan)
	return 3, f.failWith
}

func (f *fakeJobs) Export(_ context.Context, w io.Writer) error {
	f.exports.Add(1)
	if f.failWith != nil {
		return f.failWith
	}
	_, err := io.WriteString(w, `{"jobs":[]}`)
	return err
}

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func readBackup(t *testing.T, path string) string {
	t.Helper()
	rc, err := OpenBackup(path)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestWriteBackupRoundTrip(t *testing.T) {
	t.Parallel()
	for _, c := range []Compression{CompressionGzip, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path, err := WriteBackup(context.Background(), &fakeJobs{}, dir, c, t0)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "castbot-backup-20250310T090000Z"+c.ext()), path)
			assert.Equal(t, `{"jobs":[]}`, readBackup(t, path))

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "no temp files left behind")
		})
	}
}

func TestWriteBackupExportFailureLeavesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := WriteBackup(context.Background(), &fakeJobs{failWith: errors.New("boom")}, dir, CompressionGzip, t0)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteBackupNeedsDir(t *testing.T) {
	t.Parallel()
	_, err := WriteBackup(context.Background(), &fakeJobs{}, " ", CompressionGzip, t0)
	require.ErrorIs(t, err, ErrNoBackupDir)
}

func TestPruneBackups(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for i := range 5 {
		_, err := WriteBackup(context.Background(), &fakeJobs{}, dir, CompressionGzip, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o600))

	removed, err := PruneBackups(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	left, err := ListBackups(dir)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Contains(t, left[0], "20250310T120000Z")
	assert.Contains(t, left[1], "20250310T130000Z")
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestRunCleanupUsesRetention(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{}
	s := New(Config{Retention: 48 * time.Hour}, jobs, jobs, logx.Nop())
	n, err := s.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []time.Duration{48 * time.Hour}, jobs.retention)

	s = New(Config{}, jobs, jobs, logx.Nop())
	_, err = s.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaultRetention, jobs.retention[1])
}

func TestRunBackupPrunes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	jobs := &fakeJobs{}
	s := New(Config{BackupDir: dir, BackupKeep: 1}, jobs, jobs, logx.Nop())
	now := t0
	s.now = func() time.Time { now = now.Add(time.Minute); return now }

	_, err := s.RunBackup(context.Background())
	require.NoError(t, err)
	last, err := s.RunBackup(context.Background())
	require.NoError(t, err)

	left, err := ListBackups(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{last}, left)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, nil, logx.Nop())
	require.NoError(t, s.Validate(Config{CleanupEnabled: true, CleanupSpec: "0 3 * * *"}))
	require.NoError(t, s.Validate(Config{BackupEnabled: true, BackupSpec: "@every 6h", BackupDir: "b"}))
	require.Error(t, s.Validate(Config{CleanupEnabled: true, CleanupSpec: "every tuesday"}))
	require.ErrorIs(t, s.Validate(Config{BackupEnabled: true}), ErrNoBackupDir)
	require.Error(t, s.Validate(Config{Compression: "lz4"}))
	// Disabled jobs are not checked.
	require.NoError(t, s.Validate(Config{CleanupSpec: "nonsense"}))
}

func TestCronRunsEnabledJobs(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{}
	s := New(Config{BackupEnabled: true, BackupSpec: "@every 1s", BackupDir: t.TempDir()}, jobs, jobs, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(context.Background()) })

	require.Eventually(t, func() bool { return jobs.exports.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, s.Apply(Config{CleanupEnabled: true, CleanupSpec: "@every 1s"}))
	require.Eventually(t, func() bool {
		jobs.mu.Lock()
		defer jobs.mu.Unlock()
		return len(jobs.retention) >= 1
	}, 5*time.Second, 50*time.Millisecond)

	require.Error(t, s.Apply(Config{CleanupEnabled: true, CleanupSpec: "bad spec"}))
}

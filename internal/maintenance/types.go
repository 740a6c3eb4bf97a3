package maintenance

import (
	"context"
	"errors"
	"io"
	"time"
)

// Cleaner deletes finished jobs older than a cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// Exporter writes a JSON export of every job.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

func (c Compression) ext() string {
	if c == CompressionZstd {
		return ".json.zst"
	}
	return ".json.gz"
}

type Config struct {
	CleanupEnabled bool
	CleanupSpec    string
	Retention      time.Duration

	BackupEnabled bool
	BackupSpec    string
	BackupDir     string
	// BackupKeep is how many backups survive pruning; 0 keeps all.
	BackupKeep  int
	Compression Compression

	// Location evaluates cron specs; nil means UTC.
	Location *time.Location
}

const (
	defaultCleanupSpec = "@daily"
	defaultBackupSpec  = "@every 24h"
	defaultRetention   = 30 * 24 * time.Hour
	backupPrefix       = "castbot-backup-"
	backupTimeLayout   = "20060102T150405Z"
)

var ErrNoBackupDir = errors.New("backup dir not configured")

package maintenance

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// WriteBackup writes a compressed export into dir and returns its path. The
// file appears atomically: it is written under a temporary name first.
func WriteBackup(ctx context.Context, exp Exporter, dir string, c Compression, now time.Time) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrNoBackupDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup dir: %w", err)
	}
	name := backupPrefix + now.UTC().Format(backupTimeLayout) + c.ext()
	final := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err := compressTo(ctx, f, exp, c); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", err
	}
	ok = true
	return final, nil
}

func compressTo(ctx context.Context, w io.Writer, exp Exporter, c Compression) error {
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := exp.Export(ctx, enc); err != nil {
			_ = enc.Close()
			return fmt.Errorf("export: %w", err)
		}
		return enc.Close()
	default:
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		if err := exp.Export(ctx, zw); err != nil {
			_ = zw.Close()
			return fmt.Errorf("export: %w", err)
		}
		return zw.Close()
	}
}

// OpenBackup returns the decompressed export stored at path.
func OpenBackup(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &readCloser{Reader: dec.IOReadCloser(), close: func() error { dec.Close(); return f.Close() }}, nil
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, close: func() error { _ = zr.Close(); return f.Close() }}, nil
	default:
		return f, nil
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// ListBackups returns backup files in dir, oldest first.
func ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, backupPrefix) {
			continue
		}
		if strings.HasSuffix(n, ".json.gz") || strings.HasSuffix(n, ".json.zst") {
			out = append(out, filepath.Join(dir, n))
		}
	}
	// The timestamp in the name sorts lexically.
	slices.Sort(out)
	return out, nil
}

// PruneBackups keeps the newest keep backups and returns how many it removed.
func PruneBackups(dir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	files, err := ListBackups(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(files)-removed > keep {
		if err := os.Remove(files[removed]); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

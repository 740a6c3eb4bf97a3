package storage

import (
	"errors"
	"strings"

	"castbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file", "json":
		return openFile(cfg, log.With(logx.String("store", "file")))
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log.With(logx.String("store", "sqlite")))
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"hearth/internal/history"
	logx "hearth/pkg/logx"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures history persistence.
//
// Driver values:
//   - "file": dependency-free JSON document backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled and history is
// process-lifetime only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API for the notification history.
//
// Saves are wholesale: the full ordered record list replaces the previous
// contents. There is no incremental format.
type Store interface {
	LoadHistory(ctx context.Context) (records []history.Record, lastUpdated time.Time, err error)
	SaveHistory(ctx context.Context, records []history.Record) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

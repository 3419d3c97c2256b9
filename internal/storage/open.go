package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "signalgen/pkg/logx"
)

// Store is the fire history API.
type Store interface {
	AppendFire(ctx context.Context, r FireRecord) error
	// RecentFires returns up to limit records for signal, newest first.
	// An empty signal matches every signal.
	RecentFires(ctx context.Context, signal string, limit int) ([]FireRecord, error)
	// PruneBefore deletes records fired before t and returns how many were removed.
	PruneBefore(ctx context.Context, t time.Time) (int64, error)
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
	case "file", "jsonl":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// ValidDriver reports whether Open understands driver.
func ValidDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none", "file", "jsonl", "sqlite", "sqlite3":
		return true
	}
	return false
}

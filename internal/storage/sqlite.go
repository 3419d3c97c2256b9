package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	logx "signalgen/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps writers serialized and pragmas applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendFire(ctx context.Context, r FireRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	r = normalizeRecord(r)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fires(id, run_id, signal, step, boundary_ms, at_ms, lateness_ms, notified, panics)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.ID, r.RunID, r.Signal, r.Step, r.Boundary.UnixMilli(), r.At.UnixMilli(), r.LatenessMS, r.Notified, r.Panics,
	)
	return err
}

func (s *sqliteStore) RecentFires(ctx context.Context, signal string, limit int) ([]FireRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}

	const cols = `SELECT id, run_id, signal, step, boundary_ms, at_ms, lateness_ms, notified, panics FROM fires`
	var (
		rows *sql.Rows
		err  error
	)
	if signal == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY at_ms DESC, step DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE signal = ? ORDER BY at_ms DESC, step DESC LIMIT ?`, signal, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]FireRecord, 0, limit)
	for rows.Next() {
		var (
			r                FireRecord
			boundaryMS, atMS int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Signal, &r.Step, &boundaryMS, &atMS, &r.LatenessMS, &r.Notified, &r.Panics); err != nil {
			return nil, err
		}
		r.Boundary = time.UnixMilli(boundaryMS).UTC()
		r.At = time.UnixMilli(atMS).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneBefore(ctx context.Context, t time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM fires WHERE at_ms < ?`, t.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// normalizeRecord fills in the ID and timestamps of a record about to be stored.
func normalizeRecord(r FireRecord) FireRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	r.At = r.At.UTC()
	r.Boundary = r.Boundary.UTC()
	return r
}

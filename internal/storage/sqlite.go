//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"hearth/internal/history"
	logx "hearth/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

func (s *sqliteStore) LoadHistory(ctx context.Context) ([]history.Record, time.Time, error) {
	if s == nil || s.db == nil {
		return nil, time.Time{}, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, message, category, priority, source, ts, read, delivered, icon, color, meta
		 FROM notifications ORDER BY pos ASC`)
	if err != nil {
		s.log.Warn("history query failed; starting empty", logx.Err(err))
		return nil, time.Time{}, nil
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var (
			r        history.Record
			ts, meta string
			read     int
			deliv    int
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Message, &r.Category, &r.Priority, &r.Source, &ts, &read, &deliv, &r.Icon, &r.Color, &meta); err != nil {
			return nil, time.Time{}, err
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		r.Read = read != 0
		r.Delivered = deliv != 0
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &r.Metadata)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, err
	}

	var last time.Time
	var lastStr sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_updated'`).Scan(&lastStr); err == nil && lastStr.Valid {
		last, _ = time.Parse(time.RFC3339Nano, lastStr.String)
	}
	return out, last, nil
}

// SaveHistory replaces the stored list wholesale inside one transaction,
// preserving the in-memory order via the pos column.
func (s *sqliteStore) SaveHistory(ctx context.Context, records []history.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO notifications(pos, id, title, message, category, priority, source, ts, read, delivered, icon, color, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		meta := ""
		if len(r.Metadata) > 0 {
			if b, err := json.Marshal(r.Metadata); err == nil {
				meta = string(b)
			}
		}
		if _, err := stmt.ExecContext(ctx, i, r.ID, r.Title, r.Message, r.Category, r.Priority, r.Source,
			r.Timestamp.Format(time.RFC3339Nano), boolInt(r.Read), boolInt(r.Delivered), r.Icon, r.Color, meta); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('last_updated', ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		time.Now().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

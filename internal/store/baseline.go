// Package store persists the anchor baseline in SQLite.
//
// One row per anchor, keyed by pid. Saves are upserts; rows are never removed
// by reconciliation. The schema is created lazily on the first save, so a fresh
// or foreign database file loads as an empty baseline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"anchorkeeper/internal/anchor"
	"anchorkeeper/internal/logging"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS ground_anchors (
	pid TEXT PRIMARY KEY,
	lat REAL,
	lon REAL,
	alt REAL,
	hgt REAL
)`

// BaselineStore is the SQLite-backed anchor baseline.
// It expects a single writer; the keeper loop is the only caller at runtime.
type BaselineStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the baseline database at path.
func Open(path string) (*BaselineStore, error) {
	logging.StoreDebug("Opening baseline store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &BaselineStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *BaselineStore) Path() string { return s.path }

// Close closes the database.
func (s *BaselineStore) Close() error { return s.db.Close() }

// Load returns the persisted baseline. It never fails: a missing table or an
// unreadable database yields an empty set and a log line.
func (s *BaselineStore) Load(ctx context.Context) anchor.Set {
	timer := logging.StartTimer(logging.CategoryStore, "Load")
	defer timer.Stop()

	rows, err := s.db.QueryContext(ctx, "SELECT pid, lat, lon, alt, hgt FROM ground_anchors")
	if err != nil {
		if isMissingTable(err) {
			logging.StoreDebug("No baseline table in %s yet, starting empty", s.path)
		} else {
			logging.Get(logging.CategoryStore).Warn("Baseline unreadable, starting empty: %v", err)
		}
		return anchor.NewSet()
	}
	defer rows.Close()

	set := anchor.NewSet()
	for rows.Next() {
		var (
			pid                sql.NullString
			lat, lon, alt, hgt sql.NullFloat64
		)
		if err := rows.Scan(&pid, &lat, &lon, &alt, &hgt); err != nil {
			logging.Get(logging.CategoryStore).Warn("Baseline unreadable, starting empty: %v", err)
			return anchor.NewSet()
		}
		if !pid.Valid || pid.String == "" {
			logging.Get(logging.CategoryStore).Warn("Skipping baseline row without pid")
			continue
		}
		if !lat.Valid || !lon.Valid || !alt.Valid || !hgt.Valid {
			logging.Get(logging.CategoryStore).Warn("Skipping baseline row %s with NULL coordinates", pid.String)
			continue
		}
		set.Put(anchor.Anchor{PID: pid.String, Lat: lat.Float64, Lon: lon.Float64, Alt: alt.Float64, Hgt: hgt.Float64})
	}
	if err := rows.Err(); err != nil {
		logging.Get(logging.CategoryStore).Warn("Baseline unreadable, starting empty: %v", err)
		return anchor.NewSet()
	}

	logging.Store("Loaded %d baseline anchors from %s", set.Len(), s.path)
	return set
}

// Save upserts every anchor of set in one transaction.
func (s *BaselineStore) Save(ctx context.Context, set anchor.Set) (retErr error) {
	timer := logging.StartTimer(logging.CategoryStore, "Save")
	defer timer.Stop()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create ground_anchors table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO ground_anchors (pid, lat, lon, alt, hgt) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range set.Sorted() {
		if _, err := stmt.ExecContext(ctx, a.PID, a.Lat, a.Lon, a.Alt, a.Hgt); err != nil {
			return fmt.Errorf("upsert %s: %w", a.PID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.StoreDebug("Saved %d baseline anchors", set.Len())
	return nil
}

// Forget removes one anchor from the baseline. It is an operator action;
// reconciliation never deletes. Reports whether a row was removed.
func (s *BaselineStore) Forget(ctx context.Context, pid string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return false, fmt.Errorf("create ground_anchors table: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM ground_anchors WHERE pid = ?", pid)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", pid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", pid, err)
	}
	if n > 0 {
		logging.Store("Forgot baseline anchor %s", pid)
	}
	return n > 0, nil
}

func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}

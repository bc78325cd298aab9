/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history persists the bounded, newest-first log of completed edits
// in a per-user SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"retouchdesk/internal/domain"
	applog "retouchdesk/internal/log"
	"retouchdesk/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// MaxEntries caps the log; the oldest records are evicted past this.
	MaxEntries = 50

	// schemaVersion tracks the local SQLite schema. Bump on breaking changes.
	schemaVersion = 1
)

// language=SQL
// dialect=SQLite
const insertEditSQL = `INSERT INTO edits(id, original_url, edited_url, post_title, prompt, ts) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listEditsSQL = `SELECT id, original_url, edited_url, post_title, prompt, ts FROM edits ORDER BY ts DESC, rowid DESC`

// language=SQL
// dialect=SQLite
const pruneEditsSQL = `DELETE FROM edits WHERE rowid NOT IN (
	SELECT rowid FROM edits ORDER BY ts DESC, rowid DESC LIMIT ?
)`

// Store is the durable edit history. All methods are safe for use from the
// single UI goroutine plus background workers; SQLite serializes access.
type Store struct {
	db   *sql.DB
	path string
}

// Open ensures the history database exists at path, opens it in WAL mode,
// and brings the schema up to date.
func Open(path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("history"), "open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("history ready")
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Append inserts a record at the head of the log and evicts the oldest
// entries past MaxEntries. A missing ID or timestamp is filled in.
func (s *Store) Append(ctx context.Context, rec domain.EditRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	ts := rec.Timestamp.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, insertEditSQL, rec.ID, rec.OriginalImageURL, rec.EditedImageURL, rec.PostTitle, rec.Prompt, ts); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert edit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, pruneEditsSQL, MaxEntries); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune edits: %w", err)
	}
	return tx.Commit()
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]domain.EditRecord, error) {
	rows, err := s.db.QueryContext(ctx, listEditsSQL)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	defer rows.Close()
	l := applog.WithComponent("history")
	out := make([]domain.EditRecord, 0, MaxEntries)
	for rows.Next() {
		var rec domain.EditRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.OriginalImageURL, &rec.EditedImageURL, &rec.PostTitle, &rec.Prompt, &ts); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		when, perr := time.Parse(time.RFC3339Nano, ts)
		if perr != nil {
			// treat a corrupt timestamp as a corrupt row: log and skip
			l.Warn("skipping edit with bad timestamp", slog.String("id", rec.ID), slog.String("ts", ts))
			continue
		}
		rec.Timestamp = when
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count edits: %w", err)
	}
	return n, nil
}

// Clear removes every record. Individual deletion is deliberately absent.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM edits`); err != nil {
		return fmt.Errorf("clear edits: %w", err)
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			id           TEXT PRIMARY KEY,
			original_url TEXT NOT NULL,
			edited_url   TEXT NOT NULL,
			post_title   TEXT NOT NULL,
			prompt       TEXT NOT NULL,
			ts           TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_ts ON edits(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	// Seed or refresh single-row version info
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

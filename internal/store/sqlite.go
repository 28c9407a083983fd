package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS last_seen (
	creator_id TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore persists the mapping in a SQLite table.
type SQLiteStore struct {
	*Snapshot
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// one writer; the pass serialises flushes anyway
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}

	return &SQLiteStore{
		Snapshot: NewSnapshot(nil),
		db:       db,
		path:     path,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Load reads every row. A query failure is logged and yields an empty
// mapping.
func (s *SQLiteStore) Load(ctx context.Context) map[string]string {
	entries, err := s.readAll(ctx)
	if err != nil {
		s.logger.Warn("state table unreadable, starting empty", "path", s.path, "error", err.Error())
		return s.replace(nil)
	}
	s.logger.Debug("state loaded", "path", s.path, "creators", len(entries))
	return s.replace(entries)
}

func (s *SQLiteStore) readAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT creator_id, item_id FROM last_seen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var creatorID, itemID string
		if err := rows.Scan(&creatorID, &itemID); err != nil {
			return nil, err
		}
		entries[creatorID] = itemID
	}
	return entries, rows.Err()
}

// Flush upserts the whole mapping in one transaction.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	return s.flush(ctx, s.write)
}

func (s *SQLiteStore) write(ctx context.Context, entries map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersist, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO last_seen (creator_id, item_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(creator_id) DO UPDATE SET
			item_id = excluded.item_id,
			updated_at = excluded.updated_at
		WHERE last_seen.item_id != excluded.item_id`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", ErrPersist, err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	for creatorID, itemID := range entries {
		if _, err := stmt.ExecContext(ctx, creatorID, itemID, now); err != nil {
			return fmt.Errorf("%w: upsert %s: %w", ErrPersist, creatorID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}
	s.logger.Debug("state written", "path", s.path, "creators", len(entries))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

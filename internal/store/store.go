// Package store provides SQLite persistence for Sentix.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/sentix/internal/model"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_items (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT,
		run_id TEXT,
		processed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		fetched INTEGER DEFAULT 0,
		new_items INTEGER DEFAULT 0,
		events INTEGER DEFAULT 0,
		event_id TEXT,
		fallback_reason TEXT,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS verified_events (
		run_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		title TEXT NOT NULL,
		confidence REAL NOT NULL,
		source_count INTEGER NOT NULL,
		sources TEXT NOT NULL,
		facts TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, event_id)
	);

	CREATE TABLE IF NOT EXISTS drafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_id TEXT,
		sentiment TEXT NOT NULL,
		reasoning TEXT,
		narrative TEXT NOT NULL,
		fallback_reason TEXT,
		rewritten INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		event_id TEXT,
		topic TEXT NOT NULL,
		entry TEXT NOT NULL,
		sentiment TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS breaker_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		failures INTEGER NOT NULL,
		active INTEGER NOT NULL,
		until DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_drafts_created ON drafts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_knowledge_created ON knowledge(created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Processed returns the subset of ids already recorded as processed.
// Thread-safe: acquires read lock.
func (s *Store) Processed(ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	if len(ids) == 0 {
		return seen, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query("SELECT id FROM processed_items WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// MarkProcessed records items so later cycles skip them, returning the
// count of newly recorded items. Items without a key are ignored.
// Thread-safe: acquires write lock.
func (s *Store) MarkProcessed(runID string, items []model.RawItem, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO processed_items (id, source, title, link, run_id, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	newCount := 0
	for _, item := range items {
		key := item.Key()
		if key == "" {
			continue
		}
		result, err := stmt.Exec(key, item.Source, item.Title, item.Link, runID, at)
		if err != nil {
			return 0, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newCount, nil
}

// PruneProcessed drops ledger entries older than before.
// Thread-safe: acquires write lock.
func (s *Store) PruneProcessed(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec("DELETE FROM processed_items WHERE processed_at < ?", before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

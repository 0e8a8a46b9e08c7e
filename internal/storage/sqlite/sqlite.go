// Package sqlite implements the storage engine contract on an embedded
// SQLite database. All multi-row mutations run inside a single transaction;
// readers never observe a partial write. Binary payloads are delegated to a
// blob provider, only their metadata rows live here.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gupta2140/sensenet/internal/blob"
	"github.com/gupta2140/sensenet/internal/storage"

	_ "modernc.org/sqlite"
)

// Store implements storage.Store on SQLite.
type Store struct {
	db    *sql.DB
	blobs blob.Provider
}

// Verify the full contract at compile time.
var _ storage.Store = (*Store)(nil)

// New opens a store at dbPath, routing binary payloads through blobs.
func New(dbPath string, blobs blob.Provider) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps write transactions serialized.
	db.SetMaxOpenConns(1)

	return &Store{db: db, blobs: blobs}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset is a no-op: this backend keeps no internal caches.
func (s *Store) Reset() {}

// Initialize creates the database schema.
func (s *Store) Initialize() error {
	schema := `
	-- Node heads (current structural state; deletion is logical)
	CREATE TABLE IF NOT EXISTS nodes (
		node_id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER NOT NULL DEFAULT 0,
		type_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		last_major_version_id INTEGER NOT NULL DEFAULT 0,
		last_minor_version_id INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		modified_at INTEGER NOT NULL
	);

	-- Versions
	CREATE TABLE IF NOT EXISTS versions (
		version_id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id INTEGER NOT NULL,
		major INTEGER NOT NULL,
		minor INTEGER NOT NULL,
		status TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	-- Ordinary dynamic property values (canonical string encoding)
	CREATE TABLE IF NOT EXISTS dynamic_properties (
		version_id INTEGER NOT NULL,
		property_type_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		value TEXT,
		PRIMARY KEY (version_id, property_type_id)
	);

	-- Large text values kept out of the ordinary set
	CREATE TABLE IF NOT EXISTS longtext_properties (
		version_id INTEGER NOT NULL,
		property_type_id INTEGER NOT NULL,
		length INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (version_id, property_type_id)
	);

	-- Node references (one row per referred node)
	CREATE TABLE IF NOT EXISTS reference_properties (
		version_id INTEGER NOT NULL,
		property_type_id INTEGER NOT NULL,
		referred_node_id INTEGER NOT NULL,
		PRIMARY KEY (version_id, property_type_id, referred_node_id)
	);

	-- Binary property metadata; bytes live in the blob provider
	CREATE TABLE IF NOT EXISTS binary_properties (
		binary_id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL,
		property_type_id INTEGER NOT NULL,
		file_id TEXT NOT NULL,
		file_name TEXT,
		content_type TEXT,
		size INTEGER NOT NULL,
		UNIQUE (version_id, property_type_id)
	);

	-- Produced index documents per version
	CREATE TABLE IF NOT EXISTS index_documents (
		version_id INTEGER PRIMARY KEY,
		node_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		document BLOB
	);

	-- Indexing activity queue (append-only, leased by workers)
	CREATE TABLE IF NOT EXISTS indexing_activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		activity_type TEXT NOT NULL,
		node_id INTEGER NOT NULL DEFAULT 0,
		version_id INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'Waiting',
		lock_time INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		extension BLOB
	);

	-- Tree locks (exclusive subtree claims)
	CREATE TABLE IF NOT EXISTS tree_locks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		locked_at INTEGER NOT NULL
	);

	-- Schema gate (single row: timestamp + optional lock)
	CREATE TABLE IF NOT EXISTS schema_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		timestamp INTEGER NOT NULL DEFAULT 0,
		lock_token TEXT,
		locked_at INTEGER
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		node_id INTEGER NOT NULL DEFAULT 0,
		version_id INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	);

	-- Monotonic counters
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type_id);
	CREATE INDEX IF NOT EXISTS idx_versions_node ON versions(node_id);
	CREATE INDEX IF NOT EXISTS idx_reference_referred ON reference_properties(referred_node_id, property_type_id);
	CREATE INDEX IF NOT EXISTS idx_activities_state ON indexing_activities(state);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	seed := []string{
		"INSERT INTO counters (name, value) VALUES ('timestamp', 0) ON CONFLICT(name) DO NOTHING",
		"INSERT INTO schema_state (id, timestamp) VALUES (1, 0) ON CONFLICT(id) DO NOTHING",
	}
	for _, stmt := range seed {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("seed schema: %w", err)
		}
	}

	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withTx runs fn inside one transaction: committed on nil, rolled back on
// any error so no partial write is ever observable.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// nextTimestamp advances the global monotonic timestamp inside tx and
// returns the new value. Every node/version mutation in the same
// transaction draws from this counter, so issued timestamps strictly
// increase across the lifetime of the store.
func nextTimestamp(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE counters SET value = value + 1 WHERE name = 'timestamp'"); err != nil {
		return 0, fmt.Errorf("advance timestamp counter: %w", err)
	}
	var ts int64
	if err := tx.QueryRowContext(ctx, "SELECT value FROM counters WHERE name = 'timestamp'").Scan(&ts); err != nil {
		return 0, fmt.Errorf("read timestamp counter: %w", err)
	}
	return ts, nil
}

// toMillis converts a time to the millisecond precision the store keeps.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis converts a stored millisecond timestamp back to a time.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// escapeLike escapes LIKE metacharacters so a path can be used as a
// literal prefix with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// inPlaceholders returns "?, ?, ..., ?" with n placeholders.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// int64Args converts ids to driver arguments for an IN clause.
func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

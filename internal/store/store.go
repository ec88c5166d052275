package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - build_cache table
// 2 - build_cache rows scoped by target; version 1 rows are dropped
const currentSchemaVersion = 2

// migrations upgrade a database from the version they are keyed by.
var migrations = map[int][]string{
	1: {`DROP TABLE IF EXISTS build_cache`},
}

// Store is a SQLite-backed Cache.
//
// Entries are loaded once by Open. Set and Delete stage changes in memory;
// Flush persists them.
//
// A Store sees only the rows of its target, so one file can cache builds
// against several remote environments.
type Store struct {
	db       *sql.DB
	target   string
	readOnly bool

	mu      sync.Mutex
	entries map[string]Entry
	dirty   map[string]bool
	deleted map[string]bool
}

var _ Cache = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTarget scopes the store to the rows of one remote target, such as
// a base URL and environment. The default target is empty.
func WithTarget(target string) Option {
	return func(s *Store) {
		s.target = target
	}
}

func newStore(db *sql.DB, opts []Option) *Store {
	s := &Store{
		db:      db,
		entries: make(map[string]Entry),
		dirty:   make(map[string]bool),
		deleted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates or opens a SQLite database at the given path and loads the
// cache from it. Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := newStore(db, opts)
	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly loads the cache at path without writing to the file: no
// pragmas, no migrations. A database from an older schema version loads
// as empty. The returned Store stages Set and Delete in memory but
// refuses Flush, Clear and Prune.
func OpenReadOnly(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	version, err := schemaVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := newStore(db, opts)
	s.readOnly = true
	if version < currentSchemaVersion {
		return s, nil
	}
	if err := s.load(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection without flushing.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements Cache.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Set implements Cache. The entry is durable after the next Flush.
func (s *Store) Set(ctx context.Context, key string, e Entry) error {
	if key == "" {
		return fmt.Errorf("set cache entry: empty key")
	}
	if e.RemoteID == "" || e.Fingerprint == "" {
		return fmt.Errorf("set cache entry %s: remote id and fingerprint are required", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	s.dirty[key] = true
	delete(s.deleted, key)
	return nil
}

// Delete implements Cache. The removal is durable after the next Flush.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	delete(s.dirty, key)
	s.deleted[key] = true
	return nil
}

// List implements Cache, including staged changes.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedRecords(s.entries), nil
}

// Pending returns the number of staged changes not yet flushed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) + len(s.deleted)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// schemaVersion reads user_version and rejects databases written by a
// newer release.
func schemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return 0, fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	return version, nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for v := version; v > 0 && v < currentSchemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("migrate from version %d: %w", v, err)
			}
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Package index implements the sqlite-backed relational index of
// synced package metadata: schema creation and forward-only version
// migration, a transactional batch writer, and the query helpers the
// RPC layer (out of scope here) would use to read it back.
package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database holding branch_commits, pkg_info,
// its eight attribute side-tables, and pkg_supplement.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path,
// migrating its schema forward to SchemaVersion if needed. Use
// ":memory:" for an ephemeral store, as in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	// A single writer connection avoids SQLITE_BUSY from the
	// batch writer competing with itself across goroutines; reads
	// that need concurrency go through WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers (e.g. a future RPC
// layer) that need direct query access beyond the helpers here.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) userVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("index: read user_version: %w", err)
	}
	return v, nil
}

func (s *Store) setUserVersion(v int) error {
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	if err != nil {
		return fmt.Errorf("index: set user_version: %w", err)
	}
	return nil
}

func (s *Store) hasTable(name string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("index: check for table %s: %w", name, err)
	}
	return n > 0, nil
}

// migrate brings the database forward to SchemaVersion. A stamped
// user_version of 0 that nonetheless already has a pkg_info table is
// treated as the pre-versioning layout (schema version 1), not a
// fresh store — only a genuinely empty database is version 0. Either
// way, the only migration this index performs is forward, by dropping
// and recreating every table: there is no incremental ALTER TABLE
// path, since the source of truth is always the upstream Git host and
// a full resync is always possible.
func (s *Store) migrate() error {
	v, err := s.userVersion()
	if err != nil {
		return err
	}
	if v == 0 {
		preVersioned, err := s.hasTable("pkg_info")
		if err != nil {
			return err
		}
		if preVersioned {
			v = 1
		}
	}
	if v >= SchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, table := range dropAllTables {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return fmt.Errorf("index: drop %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("index: create schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit migration: %w", err)
	}
	return s.setUserVersion(SchemaVersion)
}

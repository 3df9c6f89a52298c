package memory

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in memory_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetCommitHook replaces the commit step so tests can force a failed commit.
func (s *Store) SetCommitHook(fn func(tx *sql.Tx) error) {
	s.hooks.commit = fn
}

// SetMigrations replaces the migration set the store runs.
func (s *Store) SetMigrations(ms []Migration) {
	s.migrations = ms
}

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Migration is one forward step of the schema.
//
// Rebuild marks migrations that recreate tables. Those run with foreign key
// enforcement switched off on the migration connection (SQLite ignores the
// pragma inside a transaction) and are verified with foreign_key_check
// before they commit.
type Migration struct {
	Version int
	Name    string
	Depends []int
	Rebuild bool
	Up      func(ctx context.Context, tx *sql.Tx) error
}

// MigrationStatus reports whether a known migration has been applied.
type MigrationStatus struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	Applied   bool   `json:"applied"`
	AppliedAt string `json:"applied_at,omitempty"`
}

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`

// ValidateMigrations checks that versions strictly increase and that every
// dependency names an earlier, known migration.
func ValidateMigrations(ms []Migration) error {
	known := make(map[int]bool, len(ms))
	prev := 0
	for _, m := range ms {
		if m.Version <= prev {
			return fmt.Errorf("migration %d (%s): versions must strictly increase", m.Version, m.Name)
		}
		if m.Up == nil {
			return fmt.Errorf("migration %d (%s): missing Up", m.Version, m.Name)
		}
		for _, d := range m.Depends {
			if !known[d] {
				return fmt.Errorf("migration %d (%s): depends on unknown or later migration %d", m.Version, m.Name, d)
			}
		}
		known[m.Version] = true
		prev = m.Version
	}
	return nil
}

// LatestVersion is the version the store reaches after Migrate.
func (s *Store) LatestVersion() int {
	if len(s.migrations) == 0 {
		return 0
	}
	return s.migrations[len(s.migrations)-1].Version
}

// Migrate applies every pending migration.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateTo(ctx, s.LatestVersion())
}

// MigrateTo applies pending migrations up to and including target.
// The first failure aborts the run; earlier migrations stay committed.
func (s *Store) MigrateTo(ctx context.Context, target int) error {
	if err := ValidateMigrations(s.migrations); err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range s.migrations {
		if m.Version > target {
			break
		}
		if applied[m.Version] != "" {
			continue
		}
		for _, d := range m.Depends {
			if applied[d] == "" {
				return fmt.Errorf("migration %d (%s): dependency %d is not applied", m.Version, m.Name, d)
			}
		}

		s.log.Info("applying migration", "version", m.Version, "name", m.Name)
		if err := s.applyMigration(ctx, conn, m); err != nil {
			s.log.Error("migration failed", "version", m.Version, "name", m.Name, "error", err)
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		applied[m.Version] = m.Name
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, conn *sql.Conn, m Migration) (err error) {
	if m.Rebuild {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return fmt.Errorf("disable foreign keys: %w", err)
		}
		defer func() {
			if _, ferr := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); ferr != nil && err == nil {
				err = fmt.Errorf("enable foreign keys: %w", ferr)
			}
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = m.Up(ctx, tx); err != nil {
		return err
	}
	if m.Rebuild {
		if err = checkForeignKeys(ctx, tx); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err = s.commitHook(tx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int]string, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int]string{}
	for rows.Next() {
		var v int
		var at string
		if err := rows.Scan(&v, &at); err != nil {
			return nil, err
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

func checkForeignKeys(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var violations []string
	for rows.Next() {
		var table, parent string
		var rowid sql.NullInt64
		var fkid int
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return err
		}
		violations = append(violations, fmt.Sprintf("%s row %d -> %s", table, rowid.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("foreign key violations: %s", strings.Join(violations, "; "))
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, or 0.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrationStatus lists every known migration with its applied state.
func (s *Store) MigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if _, err := s.db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(s.migrations))
	for _, m := range s.migrations {
		at, ok := applied[m.Version]
		out = append(out, MigrationStatus{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

package memory

import (
	"context"
	"database/sql"
	"errors"
)

// ─── Subjects ────────────────────────────────────────────────────────────────

// AddSubject creates a subject. Names are unique; a duplicate surfaces as
// DATABASE_ERROR from the UNIQUE constraint.
func (s *Store) AddSubject(ctx context.Context, name, description string) (*Subject, error) {
	name, err := requireText("name", name)
	if err != nil {
		return nil, err
	}
	description, err = requireText("description", description)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.withTx(ctx, "add subject", func(tx *sql.Tx) error {
		res, err := s.execHook(ctx, tx,
			`INSERT INTO subjects (name, description) VALUES (?, ?)`, name, description,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetSubject(ctx, id)
}

// GetSubject returns one subject by id.
func (s *Store) GetSubject(ctx context.Context, id int64) (*Subject, error) {
	if err := requireID("subject_id", id); err != nil {
		return nil, err
	}
	var sub Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM subjects WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.Name, &sub.Description, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("subject", id)
	}
	if err != nil {
		return nil, dbError("get subject", err)
	}
	return &sub, nil
}

// ListSubjects returns every subject, newest first.
func (s *Store) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM subjects ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, dbError("list subjects", err)
	}
	defer func() { _ = rows.Close() }()

	subjects := []Subject{}
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.CreatedAt); err != nil {
			return nil, dbError("list subjects", err)
		}
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("list subjects", err)
	}
	return subjects, nil
}

// DeleteSubject removes a subject. Its topics (with their logs and
// decisions) and its tasks go with it through ON DELETE CASCADE, and the
// search triggers clear their index rows in the same transaction.
func (s *Store) DeleteSubject(ctx context.Context, id int64) error {
	if err := requireID("subject_id", id); err != nil {
		return err
	}
	return s.withTx(ctx, "delete subject", func(tx *sql.Tx) error {
		res, err := s.execHook(ctx, tx, `DELETE FROM subjects WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("subject", id)
		}
		return nil
	})
}

func subjectExists(ctx context.Context, q queryRower, id int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

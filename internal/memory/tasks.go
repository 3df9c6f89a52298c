package memory

import (
	"context"
	"database/sql"
	"errors"
)

// ─── Tasks ───────────────────────────────────────────────────────────────────

const taskColumns = `id, subject_id, topic_id, title, description, status, created_at, updated_at`

func scanTask(r rowScanner) (Task, error) {
	var t Task
	var topic sql.NullInt64
	if err := r.Scan(&t.ID, &t.SubjectID, &topic, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.TopicID = scanNullableInt64(topic)
	return t, nil
}

// AddTask creates a pending task, optionally linked to a topic of the same
// subject.
func (s *Store) AddTask(ctx context.Context, p AddTaskParams) (*Task, error) {
	if err := requireID("subject_id", p.SubjectID); err != nil {
		return nil, err
	}
	title, err := requireText("title", p.Title)
	if err != nil {
		return nil, err
	}
	description, err := requireText("description", p.Description)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.withTx(ctx, "add task", func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, p.SubjectID)
		if err != nil {
			return err
		}
		if !ok {
			return invalidParam("subject %d does not exist", p.SubjectID)
		}
		if p.TopicID != nil {
			if err := checkTaskTopic(ctx, tx, p.SubjectID, *p.TopicID); err != nil {
				return err
			}
		}
		res, err := s.execHook(ctx, tx,
			`INSERT INTO tasks (subject_id, topic_id, title, description, status)
			 VALUES (?, ?, ?, ?, ?)`,
			p.SubjectID, nullableInt64(p.TopicID), title, description, TaskPending,
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
	return s.GetTask(ctx, id)
}

func checkTaskTopic(ctx context.Context, tx *sql.Tx, subjectID, topicID int64) error {
	var topicSubject int64
	err := tx.QueryRowContext(ctx,
		`SELECT subject_id FROM discussion_topics WHERE id = ?`, topicID,
	).Scan(&topicSubject)
	if errors.Is(err, sql.ErrNoRows) {
		return invalidParam("topic %d does not exist", topicID)
	}
	if err != nil {
		return err
	}
	if topicSubject != subjectID {
		return invalidParam("topic %d belongs to subject %d, not %d", topicID, topicSubject, subjectID)
	}
	return nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	if err := requireID("task_id", id); err != nil {
		return nil, err
	}
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, dbError("get task", err)
	}
	return &t, nil
}

// GetTasks lists a subject's tasks, oldest first, optionally filtered by status.
func (s *Store) GetTasks(ctx context.Context, subjectID int64, status string) ([]Task, error) {
	if err := requireID("subject_id", subjectID); err != nil {
		return nil, err
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE subject_id = ?`
	args := []any{subjectID}
	if status != "" {
		st, err := ParseTaskStatus(status)
		if err != nil {
			return nil, err
		}
		query += ` AND status = ?`
		args = append(args, st)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.queryTasks(ctx, "get tasks", query, args...)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task to a new status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status string) (*Task, error) {
	st, err := ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}
	return s.UpdateTask(ctx, id, UpdateTaskParams{Status: &st})
}

// UpdateTask applies a partial update. updated_at is refreshed by trigger.
func (s *Store) UpdateTask(ctx context.Context, id int64, p UpdateTaskParams) (*Task, error) {
	if err := requireID("task_id", id); err != nil {
		return nil, err
	}
	if p.Status == nil && p.Title == nil && p.Description == nil && p.TopicID == nil && !p.UnlinkTopic {
		return nil, invalidParam("nothing to update")
	}

	current, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *current
	if p.Status != nil {
		if next.Status, err = ParseTaskStatus(string(*p.Status)); err != nil {
			return nil, err
		}
	}
	if p.Title != nil {
		if next.Title, err = requireText("title", *p.Title); err != nil {
			return nil, err
		}
	}
	if p.Description != nil {
		if next.Description, err = requireText("description", *p.Description); err != nil {
			return nil, err
		}
	}
	switch {
	case p.UnlinkTopic:
		next.TopicID = nil
	case p.TopicID != nil:
		next.TopicID = p.TopicID
	}

	err = s.withTx(ctx, "update task", func(tx *sql.Tx) error {
		if next.TopicID != nil && (current.TopicID == nil || *current.TopicID != *next.TopicID) {
			if err := checkTaskTopic(ctx, tx, current.SubjectID, *next.TopicID); err != nil {
				return err
			}
		}
		res, err := s.execHook(ctx, tx,
			`UPDATE tasks SET status = ?, title = ?, description = ?, topic_id = ? WHERE id = ?`,
			next.Status, next.Title, next.Description, nullableInt64(next.TopicID), id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("task", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, id)
}

package memory

import (
	"context"
	"database/sql"
	"time"
)

// ─── Discussion logs ─────────────────────────────────────────────────────────

// AddLog appends one exchange to a topic's discussion log.
func (s *Store) AddLog(ctx context.Context, topicID int64, content string) (*LogEntry, error) {
	if err := requireID("topic_id", topicID); err != nil {
		return nil, err
	}
	content, err := requireText("content", content)
	if err != nil {
		return nil, err
	}

	var entry LogEntry
	err = s.withTx(ctx, "add log", func(tx *sql.Tx) error {
		if err := requireTopic(ctx, tx, topicID); err != nil {
			return err
		}
		res, err := s.execHook(ctx, tx,
			`INSERT INTO discussion_logs (topic_id, content) VALUES (?, ?)`, topicID, content,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id, topic_id, content, created_at FROM discussion_logs WHERE id = ?`, id,
		).Scan(&entry.ID, &entry.TopicID, &entry.Content, &entry.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetLogs pages through a topic's log in id order. startID is inclusive;
// zero starts from the beginning.
func (s *Store) GetLogs(ctx context.Context, topicID, startID int64, limit int) ([]LogEntry, error) {
	if err := requireID("topic_id", topicID); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit, s.cfg.MaxLogs)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, content, created_at FROM discussion_logs
		 WHERE topic_id = ? AND id >= ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		topicID, startID, limit,
	)
	if err != nil {
		return nil, dbError("get logs", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TopicID, &e.Content, &e.CreatedAt); err != nil {
			return nil, dbError("get logs", err)
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get logs", err)
	}
	return logs, nil
}

// ─── Decisions ───────────────────────────────────────────────────────────────

// AddDecision records a decision against a topic. Both the decision text and
// its reason are required.
func (s *Store) AddDecision(ctx context.Context, topicID int64, decision, reason string) (*Decision, error) {
	if err := requireID("topic_id", topicID); err != nil {
		return nil, err
	}
	decision, err := requireText("decision", decision)
	if err != nil {
		return nil, err
	}
	reason, err = requireText("reason", reason)
	if err != nil {
		return nil, err
	}

	var d Decision
	err = s.withTx(ctx, "add decision", func(tx *sql.Tx) error {
		if err := requireTopic(ctx, tx, topicID); err != nil {
			return err
		}
		res, err := s.execHook(ctx, tx,
			`INSERT INTO decisions (topic_id, decision, reason) VALUES (?, ?, ?)`,
			topicID, decision, reason,
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT id, topic_id, decision, reason, created_at FROM decisions WHERE id = ?`, id,
		).Scan(&d.ID, &d.TopicID, &d.Decision, &d.Reason, &d.CreatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDecisions pages through a topic's decisions in id order. startID is
// inclusive; zero starts from the beginning.
func (s *Store) GetDecisions(ctx context.Context, topicID, startID int64, limit int) ([]Decision, error) {
	if err := requireID("topic_id", topicID); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit, s.cfg.MaxDecisions)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, topic_id, decision, reason, created_at FROM decisions
		 WHERE topic_id = ? AND id >= ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		topicID, startID, limit,
	)
	if err != nil {
		return nil, dbError("get decisions", err)
	}
	defer func() { _ = rows.Close() }()

	decisions := []Decision{}
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.TopicID, &d.Decision, &d.Reason, &d.CreatedAt); err != nil {
			return nil, dbError("get decisions", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("get decisions", err)
	}
	return decisions, nil
}

// HasDecisionSince reports whether a decision was recorded against topicID
// at or after since. A zero since matches any decision.
func (s *Store) HasDecisionSince(ctx context.Context, topicID int64, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE topic_id = ? AND created_at >= ?`,
		topicID, FormatTime(since),
	).Scan(&n)
	if err != nil {
		return false, dbError("check decisions", err)
	}
	return n > 0, nil
}

func requireTopic(ctx context.Context, tx *sql.Tx, topicID int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM discussion_topics WHERE id = ?`, topicID).Scan(&one)
	if err == sql.ErrNoRows {
		return invalidParam("topic %d does not exist", topicID)
	}
	return err
}

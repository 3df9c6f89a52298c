package memory

import (
	"context"
	"database/sql"
	"errors"
	"unicode/utf8"
)

// ─── Topics ──────────────────────────────────────────────────────────────────

const topicColumns = `id, subject_id, parent_topic_id, title, description, created_at`

func scanTopic(r rowScanner) (Topic, error) {
	var t Topic
	var parent sql.NullInt64
	if err := r.Scan(&t.ID, &t.SubjectID, &parent, &t.Title, &t.Description, &t.CreatedAt); err != nil {
		return Topic{}, err
	}
	t.ParentTopicID = scanNullableInt64(parent)
	return t, nil
}

func (s *Store) validTitle(title string) (string, error) {
	title, err := requireText("title", title)
	if err != nil {
		return "", err
	}
	if utf8.RuneCountInString(title) > s.cfg.MaxTitleLength {
		return "", invalidParam("title must be at most %d characters", s.cfg.MaxTitleLength)
	}
	return title, nil
}

// AddTopic creates a topic, top-level when ParentTopicID is nil.
// The parent must exist and belong to the same subject.
func (s *Store) AddTopic(ctx context.Context, p AddTopicParams) (*Topic, error) {
	if err := requireID("subject_id", p.SubjectID); err != nil {
		return nil, err
	}
	title, err := s.validTitle(p.Title)
	if err != nil {
		return nil, err
	}
	description, err := requireText("description", p.Description)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.withTx(ctx, "add topic", func(tx *sql.Tx) error {
		ok, err := subjectExists(ctx, tx, p.SubjectID)
		if err != nil {
			return err
		}
		if !ok {
			return invalidParam("subject %d does not exist", p.SubjectID)
		}
		if p.ParentTopicID != nil {
			if err := checkParent(ctx, tx, p.SubjectID, *p.ParentTopicID); err != nil {
				return err
			}
		}

		res, err := s.execHook(ctx, tx,
			`INSERT INTO discussion_topics (subject_id, parent_topic_id, title, description)
			 VALUES (?, ?, ?, ?)`,
			p.SubjectID, nullableInt64(p.ParentTopicID), title, description,
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
	return s.GetTopic(ctx, id)
}

func checkParent(ctx context.Context, tx *sql.Tx, subjectID, parentID int64) error {
	var parentSubject int64
	err := tx.QueryRowContext(ctx,
		`SELECT subject_id FROM discussion_topics WHERE id = ?`, parentID,
	).Scan(&parentSubject)
	if errors.Is(err, sql.ErrNoRows) {
		return invalidParam("parent topic %d does not exist", parentID)
	}
	if err != nil {
		return err
	}
	if parentSubject != subjectID {
		return invalidParam("parent topic %d belongs to subject %d, not %d", parentID, parentSubject, subjectID)
	}
	return nil
}

// GetTopic returns one topic by id.
func (s *Store) GetTopic(ctx context.Context, id int64) (*Topic, error) {
	if err := requireID("topic_id", id); err != nil {
		return nil, err
	}
	t, err := scanTopic(s.db.QueryRowContext(ctx,
		`SELECT `+topicColumns+` FROM discussion_topics WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("topic", id)
	}
	if err != nil {
		return nil, dbError("get topic", err)
	}
	return &t, nil
}

// TopicExists reports whether a topic id is present.
func (s *Store) TopicExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM discussion_topics WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, dbError("check topic", err)
	}
	return true, nil
}

type topicFilter int

const (
	topicsAll topicFilter = iota
	topicsDecided
	topicsUndecided
)

// GetTopics lists the direct children of parentID (top-level topics when
// nil), oldest first, at most MaxTopics.
func (s *Store) GetTopics(ctx context.Context, subjectID int64, parentID *int64, limit int) ([]Topic, error) {
	return s.listTopics(ctx, subjectID, parentID, topicsAll, limit)
}

// GetDecidedTopics is GetTopics restricted to topics with at least one decision.
func (s *Store) GetDecidedTopics(ctx context.Context, subjectID int64, parentID *int64, limit int) ([]Topic, error) {
	return s.listTopics(ctx, subjectID, parentID, topicsDecided, limit)
}

// GetUndecidedTopics is GetTopics restricted to topics without decisions.
func (s *Store) GetUndecidedTopics(ctx context.Context, subjectID int64, parentID *int64, limit int) ([]Topic, error) {
	return s.listTopics(ctx, subjectID, parentID, topicsUndecided, limit)
}

func (s *Store) listTopics(ctx context.Context, subjectID int64, parentID *int64, filter topicFilter, limit int) ([]Topic, error) {
	if err := requireID("subject_id", subjectID); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit, s.cfg.MaxTopics)

	query := `SELECT ` + topicColumns + ` FROM discussion_topics dt WHERE dt.subject_id = ?`
	args := []any{subjectID}
	if parentID == nil {
		query += ` AND dt.parent_topic_id IS NULL`
	} else {
		query += ` AND dt.parent_topic_id = ?`
		args = append(args, *parentID)
	}
	switch filter {
	case topicsDecided:
		query += ` AND EXISTS (SELECT 1 FROM decisions d WHERE d.topic_id = dt.id)`
	case topicsUndecided:
		query += ` AND NOT EXISTS (SELECT 1 FROM decisions d WHERE d.topic_id = dt.id)`
	}
	query += ` ORDER BY dt.created_at ASC, dt.id ASC LIMIT ?`
	args = append(args, limit)

	return s.queryTopics(ctx, "list topics", query, args...)
}

func (s *Store) queryTopics(ctx context.Context, op, query string, args ...any) ([]Topic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError(op, err)
	}
	defer func() { _ = rows.Close() }()

	topics := []Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, dbError(op, err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(op, err)
	}
	return topics, nil
}

// GetTopicTree walks the forest of a subject depth-first, starting at rootID
// or at every top-level topic when rootID is nil, and stops once limit nodes
// (at most MaxTreeNodes) have been collected.
func (s *Store) GetTopicTree(ctx context.Context, subjectID int64, rootID *int64, limit int) (*TopicTree, error) {
	if err := requireID("subject_id", subjectID); err != nil {
		return nil, err
	}
	limit = ClampLimit(limit, s.cfg.MaxTreeNodes)

	all, err := s.queryTopics(ctx, "get topic tree",
		`SELECT `+topicColumns+` FROM discussion_topics WHERE subject_id = ?
		 ORDER BY created_at ASC, id ASC`, subjectID,
	)
	if err != nil {
		return nil, err
	}

	children := map[int64][]Topic{}
	var roots []Topic
	for _, t := range all {
		switch {
		case rootID != nil && t.ID == *rootID:
			roots = append(roots, t)
		case rootID == nil && t.ParentTopicID == nil:
			roots = append(roots, t)
		}
		if t.ParentTopicID != nil {
			children[*t.ParentTopicID] = append(children[*t.ParentTopicID], t)
		}
	}
	if rootID != nil && len(roots) == 0 {
		return nil, notFound("topic", *rootID)
	}

	tree := &TopicTree{Roots: []*TopicNode{}}
	var walk func(t Topic) *TopicNode
	walk = func(t Topic) *TopicNode {
		if tree.NodeCount >= limit {
			tree.Truncated = true
			return nil
		}
		tree.NodeCount++
		node := &TopicNode{Topic: t, Children: []*TopicNode{}}
		for _, c := range children[t.ID] {
			child := walk(c)
			if child == nil {
				break
			}
			node.Children = append(node.Children, child)
		}
		return node
	}
	for _, r := range roots {
		node := walk(r)
		if node == nil {
			break
		}
		tree.Roots = append(tree.Roots, node)
	}
	return tree, nil
}

// MoveTopic re-parents a topic within its subject, or makes it top-level when
// newParentID is nil. Moving a topic under itself or any of its descendants
// is rejected.
func (s *Store) MoveTopic(ctx context.Context, topicID int64, newParentID *int64) (*Topic, error) {
	if err := requireID("topic_id", topicID); err != nil {
		return nil, err
	}

	err := s.withTx(ctx, "move topic", func(tx *sql.Tx) error {
		var subjectID int64
		err := tx.QueryRowContext(ctx,
			`SELECT subject_id FROM discussion_topics WHERE id = ?`, topicID,
		).Scan(&subjectID)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("topic", topicID)
		}
		if err != nil {
			return err
		}

		if newParentID != nil {
			if err := checkParent(ctx, tx, subjectID, *newParentID); err != nil {
				return err
			}
			cyclic, err := isDescendant(ctx, tx, topicID, *newParentID)
			if err != nil {
				return err
			}
			if cyclic {
				return invalidParam("topic %d cannot be moved under itself or its descendant %d", topicID, *newParentID)
			}
		}

		_, err = s.execHook(ctx, tx,
			`UPDATE discussion_topics SET parent_topic_id = ? WHERE id = ?`,
			nullableInt64(newParentID), topicID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetTopic(ctx, topicID)
}

// isDescendant reports whether candidate is ancestor itself or sits anywhere
// below it.
func isDescendant(ctx context.Context, tx *sql.Tx, ancestor, candidate int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`WITH RECURSIVE subtree(id) AS (
			SELECT id FROM discussion_topics WHERE id = ?
			UNION
			SELECT t.id FROM discussion_topics t JOIN subtree st ON t.parent_topic_id = st.id
		)
		SELECT 1 FROM subtree WHERE id = ? LIMIT 1`,
		ancestor, candidate,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// UpdateTopic changes a topic's title and/or description.
func (s *Store) UpdateTopic(ctx context.Context, id int64, p UpdateTopicParams) (*Topic, error) {
	if err := requireID("topic_id", id); err != nil {
		return nil, err
	}
	if p.Title == nil && p.Description == nil {
		return nil, invalidParam("nothing to update: pass title or description")
	}

	current, err := s.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	title, description := current.Title, current.Description
	if p.Title != nil {
		if title, err = s.validTitle(*p.Title); err != nil {
			return nil, err
		}
	}
	if p.Description != nil {
		if description, err = requireText("description", *p.Description); err != nil {
			return nil, err
		}
	}

	err = s.withTx(ctx, "update topic", func(tx *sql.Tx) error {
		res, err := s.execHook(ctx, tx,
			`UPDATE discussion_topics SET title = ?, description = ? WHERE id = ?`,
			title, description, id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("topic", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTopic(ctx, id)
}

// DeleteTopic removes a topic together with its child topics, logs and
// decisions. Tasks linked to any removed topic survive with topic_id NULL.
func (s *Store) DeleteTopic(ctx context.Context, id int64) error {
	if err := requireID("topic_id", id); err != nil {
		return err
	}
	return s.withTx(ctx, "delete topic", func(tx *sql.Tx) error {
		res, err := s.execHook(ctx, tx, `DELETE FROM discussion_topics WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return notFound("topic", id)
		}
		return nil
	})
}

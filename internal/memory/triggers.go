package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// triggerSet describes the shape of the schema a set of search triggers is
// written against. Each migration that changes one of these properties drops
// every search trigger and re-registers the set for the new shape.
type triggerSet struct {
	// subjectColumn is the owning-subject column on topics and tasks
	// ("project_id" before the subjects rename).
	subjectColumn string
	// decisionTopicNullable selects the three-way eligibility split for
	// decision updates. Once decisions.topic_id is NOT NULL every decision
	// is eligible and a single update trigger is used.
	decisionTopicNullable bool
}

var (
	legacyTriggers  = triggerSet{subjectColumn: "project_id", decisionTopicNullable: true}
	renamedTriggers = triggerSet{subjectColumn: "subject_id", decisionTopicNullable: true}
	currentTriggers = triggerSet{subjectColumn: "subject_id", decisionTopicNullable: false}
)

// statements returns the CREATE TRIGGER statements for this set.
func (ts triggerSet) statements() []string {
	col := ts.subjectColumn
	r := strings.NewReplacer("{col}", col)

	stmts := []string{
		// Topics are always eligible.
		`CREATE TRIGGER IF NOT EXISTS search_topics_ai AFTER INSERT ON discussion_topics BEGIN
			INSERT INTO search_index (source_type, source_id, {col}, title, created_at)
			VALUES ('topic', new.id, new.{col}, new.title, new.created_at);
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.title, COALESCE(new.description, '') FROM search_index
			WHERE source_type = 'topic' AND source_id = new.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS search_topics_au AFTER UPDATE ON discussion_topics BEGIN
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.title, COALESCE(old.description, '') FROM search_index
			WHERE source_type = 'topic' AND source_id = old.id;
			UPDATE search_index SET {col} = new.{col}, title = new.title
			WHERE source_type = 'topic' AND source_id = old.id;
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.title, COALESCE(new.description, '') FROM search_index
			WHERE source_type = 'topic' AND source_id = new.id;
		END`,
		// Decisions carry no subject column; their index rows follow the topic.
		`CREATE TRIGGER IF NOT EXISTS search_topics_subject_au AFTER UPDATE OF {col} ON discussion_topics
		WHEN old.{col} IS NOT new.{col} BEGIN
			UPDATE search_index SET {col} = new.{col}
			WHERE source_type = 'decision'
			  AND source_id IN (SELECT id FROM decisions WHERE topic_id = new.id);
		END`,
		`CREATE TRIGGER IF NOT EXISTS search_topics_ad AFTER DELETE ON discussion_topics BEGIN
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.title, COALESCE(old.description, '') FROM search_index
			WHERE source_type = 'topic' AND source_id = old.id;
			DELETE FROM search_index WHERE source_type = 'topic' AND source_id = old.id;
		END`,

		// Tasks are always eligible.
		`CREATE TRIGGER IF NOT EXISTS search_tasks_ai AFTER INSERT ON tasks BEGIN
			INSERT INTO search_index (source_type, source_id, {col}, title, created_at)
			VALUES ('task', new.id, new.{col}, new.title, new.created_at);
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.title, COALESCE(new.description, '') FROM search_index
			WHERE source_type = 'task' AND source_id = new.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS search_tasks_au AFTER UPDATE OF {col}, title, description ON tasks BEGIN
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.title, COALESCE(old.description, '') FROM search_index
			WHERE source_type = 'task' AND source_id = old.id;
			UPDATE search_index SET {col} = new.{col}, title = new.title
			WHERE source_type = 'task' AND source_id = old.id;
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.title, COALESCE(new.description, '') FROM search_index
			WHERE source_type = 'task' AND source_id = new.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS search_tasks_ad AFTER DELETE ON tasks BEGIN
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.title, COALESCE(old.description, '') FROM search_index
			WHERE source_type = 'task' AND source_id = old.id;
			DELETE FROM search_index WHERE source_type = 'task' AND source_id = old.id;
		END`,
		`CREATE TRIGGER IF NOT EXISTS tasks_touch_updated_at AFTER UPDATE ON tasks
		WHEN new.updated_at IS old.updated_at BEGIN
			UPDATE tasks SET updated_at = datetime('now') WHERE id = new.id;
		END`,
	}

	decisionInsert := `
			INSERT INTO search_index (source_type, source_id, {col}, title, created_at)
			SELECT 'decision', new.id, t.{col}, new.decision, new.created_at FROM discussion_topics t
			WHERE t.id = new.topic_id;
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.decision, COALESCE(new.reason, '') FROM search_index
			WHERE source_type = 'decision' AND source_id = new.id;`
	decisionDelete := `
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.decision, COALESCE(old.reason, '') FROM search_index
			WHERE source_type = 'decision' AND source_id = old.id;
			DELETE FROM search_index WHERE source_type = 'decision' AND source_id = old.id;`
	decisionRefresh := `
			INSERT INTO search_index_fts (search_index_fts, rowid, title, body)
			SELECT 'delete', id, old.decision, COALESCE(old.reason, '') FROM search_index
			WHERE source_type = 'decision' AND source_id = old.id;
			UPDATE search_index
			SET {col} = (SELECT t.{col} FROM discussion_topics t WHERE t.id = new.topic_id),
			    title = new.decision
			WHERE source_type = 'decision' AND source_id = old.id;
			INSERT INTO search_index_fts (rowid, title, body)
			SELECT id, new.decision, COALESCE(new.reason, '') FROM search_index
			WHERE source_type = 'decision' AND source_id = new.id;`

	if ts.decisionTopicNullable {
		stmts = append(stmts,
			`CREATE TRIGGER IF NOT EXISTS search_decisions_ai AFTER INSERT ON decisions
			WHEN new.topic_id IS NOT NULL BEGIN`+decisionInsert+`
			END`,
			// eligible -> eligible
			`CREATE TRIGGER IF NOT EXISTS search_decisions_au_keep AFTER UPDATE ON decisions
			WHEN old.topic_id IS NOT NULL AND new.topic_id IS NOT NULL BEGIN`+decisionRefresh+`
			END`,
			// eligible -> ineligible
			`CREATE TRIGGER IF NOT EXISTS search_decisions_au_drop AFTER UPDATE ON decisions
			WHEN old.topic_id IS NOT NULL AND new.topic_id IS NULL BEGIN`+decisionDelete+`
			END`,
			// ineligible -> eligible
			`CREATE TRIGGER IF NOT EXISTS search_decisions_au_add AFTER UPDATE ON decisions
			WHEN old.topic_id IS NULL AND new.topic_id IS NOT NULL BEGIN`+decisionInsert+`
			END`,
		)
	} else {
		stmts = append(stmts,
			`CREATE TRIGGER IF NOT EXISTS search_decisions_ai AFTER INSERT ON decisions BEGIN`+decisionInsert+`
			END`,
			`CREATE TRIGGER IF NOT EXISTS search_decisions_au AFTER UPDATE ON decisions BEGIN`+decisionRefresh+`
			END`,
		)
	}
	stmts = append(stmts,
		`CREATE TRIGGER IF NOT EXISTS search_decisions_ad AFTER DELETE ON decisions BEGIN`+decisionDelete+`
		END`,
	)

	for i, s := range stmts {
		stmts[i] = r.Replace(s)
	}
	return stmts
}

// create registers every trigger of the set.
func (ts triggerSet) create(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range ts.statements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create search trigger: %w", err)
		}
	}
	return nil
}

// dropTriggers removes every trigger currently registered, whatever era
// created it. Table rebuilds call it before touching any table so that no
// trigger body is left referring to a table that is mid-rename.
func dropTriggers(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'trigger'`)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TRIGGER IF EXISTS %q", name)); err != nil {
			return fmt.Errorf("drop trigger %s: %w", name, err)
		}
	}
	return nil
}

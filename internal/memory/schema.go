package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// Names used when early decisions without a topic are re-homed.
const (
	UnfiledSubjectName = "unfiled"
	UnfiledTopicTitle  = "Unfiled decisions"
)

// TitleMaxLength is the topic title CHECK installed by migration 6. A
// configured title limit can only be lower.
const TitleMaxLength = 200

// Migrations returns the ordered schema history.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_core_tables",
			Up:      migrateCoreTables,
		},
		{
			Version: 2,
			Name:    "add_search_index",
			Depends: []int{1},
			Up:      migrateSearchIndex,
		},
		{
			Version: 3,
			Name:    "rename_projects_to_subjects",
			Depends: []int{2},
			Rebuild: true,
			Up:      migrateRenameSubjects,
		},
		{
			Version: 4,
			Name:    "require_decision_topic_and_reason",
			Depends: []int{3},
			Rebuild: true,
			Up:      migrateRequireDecisionTopic,
		},
		{
			Version: 5,
			Name:    "retire_blocked_task_status",
			Depends: []int{3, 4},
			Rebuild: true,
			Up:      migrateRetireBlocked,
		},
		{
			Version: 6,
			Name:    "tighten_topic_constraints",
			Depends: []int{4},
			Rebuild: true,
			Up:      migrateTightenTopics,
		},
	}
}

func execAll(ctx context.Context, tx *sql.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

// ─── 1: core tables ──────────────────────────────────────────────────────────

func migrateCoreTables(ctx context.Context, tx *sql.Tx) error {
	return execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS projects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL UNIQUE,
			description TEXT,
			created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS discussion_topics (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			parent_topic_id INTEGER REFERENCES discussion_topics(id) ON DELETE CASCADE,
			title           TEXT    NOT NULL,
			description     TEXT,
			created_at      TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS discussion_logs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			topic_id   INTEGER NOT NULL REFERENCES discussion_topics(id) ON DELETE CASCADE,
			content    TEXT    NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			topic_id   INTEGER REFERENCES discussion_topics(id) ON DELETE SET NULL,
			decision   TEXT    NOT NULL,
			reason     TEXT,
			created_at TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			topic_id    INTEGER REFERENCES discussion_topics(id) ON DELETE CASCADE,
			title       TEXT    NOT NULL,
			description TEXT,
			status      TEXT    NOT NULL DEFAULT 'pending'
			            CHECK (status IN ('pending', 'in_progress', 'completed', 'blocked')),
			created_at  TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_project ON discussion_topics(project_id, parent_topic_id)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_topic ON discussion_logs(topic_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_topic ON decisions(topic_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_topic ON tasks(topic_id)`,
	)
}

// ─── 2: search index ─────────────────────────────────────────────────────────

func migrateSearchIndex(ctx context.Context, tx *sql.Tx) error {
	if err := execAll(ctx, tx,
		`CREATE TABLE IF NOT EXISTS search_index (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			source_type TEXT    NOT NULL CHECK (source_type IN ('topic', 'decision', 'task')),
			source_id   INTEGER NOT NULL,
			project_id  INTEGER NOT NULL,
			title       TEXT    NOT NULL,
			created_at  TEXT    NOT NULL DEFAULT (datetime('now')),
			UNIQUE (source_type, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_index_project ON search_index(project_id, source_type)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS search_index_fts USING fts5(
			title, body, content='', tokenize='trigram'
		)`,

		// Backfill rows written before the index existed.
		`INSERT INTO search_index (source_type, source_id, project_id, title, created_at)
		 SELECT 'topic', id, project_id, title, created_at FROM discussion_topics`,
		`INSERT INTO search_index (source_type, source_id, project_id, title, created_at)
		 SELECT 'task', id, project_id, title, created_at FROM tasks`,
		`INSERT INTO search_index (source_type, source_id, project_id, title, created_at)
		 SELECT 'decision', d.id, t.project_id, d.decision, d.created_at
		 FROM decisions d JOIN discussion_topics t ON t.id = d.topic_id`,
		`INSERT INTO search_index_fts (rowid, title, body)
		 SELECT si.id, t.title, COALESCE(t.description, '')
		 FROM search_index si JOIN discussion_topics t ON t.id = si.source_id
		 WHERE si.source_type = 'topic'`,
		`INSERT INTO search_index_fts (rowid, title, body)
		 SELECT si.id, k.title, COALESCE(k.description, '')
		 FROM search_index si JOIN tasks k ON k.id = si.source_id
		 WHERE si.source_type = 'task'`,
		`INSERT INTO search_index_fts (rowid, title, body)
		 SELECT si.id, d.decision, COALESCE(d.reason, '')
		 FROM search_index si JOIN decisions d ON d.id = si.source_id
		 WHERE si.source_type = 'decision'`,
	); err != nil {
		return err
	}
	return legacyTriggers.create(ctx, tx)
}

// ─── 3: projects -> subjects ─────────────────────────────────────────────────

func migrateRenameSubjects(ctx context.Context, tx *sql.Tx) error {
	if err := dropTriggers(ctx, tx); err != nil {
		return err
	}
	if err := execAll(ctx, tx,
		// Renaming first rewrites the child foreign keys to point at subjects.
		`ALTER TABLE projects RENAME TO subjects`,
		`CREATE TABLE subjects_new (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT    NOT NULL UNIQUE CHECK (length(trim(name)) > 0),
			description TEXT    NOT NULL,
			created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`INSERT INTO subjects_new (id, name, description, created_at)
		 SELECT id, name, COALESCE(description, ''), created_at FROM subjects`,
		`DROP TABLE subjects`,
		`ALTER TABLE subjects_new RENAME TO subjects`,

		`ALTER TABLE discussion_topics RENAME COLUMN project_id TO subject_id`,
		`ALTER TABLE tasks RENAME COLUMN project_id TO subject_id`,
		`ALTER TABLE search_index RENAME COLUMN project_id TO subject_id`,

		`DROP INDEX IF EXISTS idx_topics_project`,
		`DROP INDEX IF EXISTS idx_tasks_project`,
		`DROP INDEX IF EXISTS idx_search_index_project`,
		`CREATE INDEX IF NOT EXISTS idx_topics_subject ON discussion_topics(subject_id, parent_topic_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_subject ON tasks(subject_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_search_index_subject ON search_index(subject_id, source_type)`,
	); err != nil {
		return err
	}
	return renamedTriggers.create(ctx, tx)
}

// ─── 4: decisions.topic_id NOT NULL ──────────────────────────────────────────

func migrateRequireDecisionTopic(ctx context.Context, tx *sql.Tx) error {
	// Re-home orphans while the eligibility triggers are still live, so the
	// ineligible -> eligible path indexes them.
	if err := fileOrphanDecisions(ctx, tx); err != nil {
		return err
	}
	if err := dropTriggers(ctx, tx); err != nil {
		return err
	}
	if err := execAll(ctx, tx,
		`CREATE TABLE decisions_new (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			topic_id   INTEGER NOT NULL REFERENCES discussion_topics(id) ON DELETE CASCADE,
			decision   TEXT    NOT NULL,
			reason     TEXT    NOT NULL,
			created_at TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`INSERT INTO decisions_new (id, topic_id, decision, reason, created_at)
		 SELECT id, topic_id, decision, COALESCE(reason, ''), created_at FROM decisions`,
		`DROP TABLE decisions`,
		`ALTER TABLE decisions_new RENAME TO decisions`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_topic ON decisions(topic_id, id)`,
	); err != nil {
		return err
	}
	return currentTriggers.create(ctx, tx)
}

func fileOrphanDecisions(ctx context.Context, tx *sql.Tx) error {
	var orphans int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE topic_id IS NULL`,
	).Scan(&orphans); err != nil {
		return err
	}
	if orphans == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO subjects (name, description)
		 SELECT ?, 'Holds decisions recorded before every decision required a topic'
		 WHERE NOT EXISTS (SELECT 1 FROM subjects WHERE name = ?)`,
		UnfiledSubjectName, UnfiledSubjectName,
	); err != nil {
		return fmt.Errorf("create unfiled subject: %w", err)
	}
	var subjectID int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM subjects WHERE name = ?`, UnfiledSubjectName,
	).Scan(&subjectID); err != nil {
		return err
	}

	var topicID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM discussion_topics
		 WHERE subject_id = ? AND parent_topic_id IS NULL AND title = ?
		 ORDER BY id LIMIT 1`,
		subjectID, UnfiledTopicTitle,
	).Scan(&topicID)
	if err == sql.ErrNoRows {
		res, ierr := tx.ExecContext(ctx,
			`INSERT INTO discussion_topics (subject_id, title, description) VALUES (?, ?, ?)`,
			subjectID, UnfiledTopicTitle, "Decisions that had no topic when topics became mandatory",
		)
		if ierr != nil {
			return fmt.Errorf("create unfiled topic: %w", ierr)
		}
		topicID, err = res.LastInsertId()
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE decisions SET topic_id = ? WHERE topic_id IS NULL`, topicID)
	return err
}

// ─── 5: tasks ────────────────────────────────────────────────────────────────

func migrateRetireBlocked(ctx context.Context, tx *sql.Tx) error {
	if err := dropTriggers(ctx, tx); err != nil {
		return err
	}
	if err := execAll(ctx, tx,
		`CREATE TABLE tasks_new (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id  INTEGER NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
			topic_id    INTEGER REFERENCES discussion_topics(id) ON DELETE SET NULL,
			title       TEXT    NOT NULL,
			description TEXT    NOT NULL,
			status      TEXT    NOT NULL DEFAULT 'pending'
			            CHECK (status IN ('pending', 'in_progress', 'completed')),
			created_at  TEXT    NOT NULL DEFAULT (datetime('now')),
			updated_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)`,
		`INSERT INTO tasks_new (id, subject_id, topic_id, title, description, status, created_at, updated_at)
		 SELECT id, subject_id, topic_id, title, COALESCE(description, ''),
		        CASE status WHEN 'blocked' THEN 'pending' ELSE status END,
		        created_at, updated_at
		 FROM tasks`,
		`DROP TABLE tasks`,
		`ALTER TABLE tasks_new RENAME TO tasks`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_subject ON tasks(subject_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_topic ON tasks(topic_id)`,
	); err != nil {
		return err
	}
	return currentTriggers.create(ctx, tx)
}

// ─── 6: topics ───────────────────────────────────────────────────────────────

func migrateTightenTopics(ctx context.Context, tx *sql.Tx) error {
	// Normalize through the live triggers so the index sees the new titles.
	if err := execAll(ctx, tx,
		`UPDATE discussion_topics SET title = '(untitled)' WHERE length(trim(title)) = 0`,
		fmt.Sprintf(`UPDATE discussion_topics SET title = substr(title, 1, %[1]d) WHERE length(title) > %[1]d`, TitleMaxLength),
		`UPDATE discussion_topics SET description = '' WHERE description IS NULL`,
	); err != nil {
		return err
	}
	if err := dropTriggers(ctx, tx); err != nil {
		return err
	}
	if err := execAll(ctx, tx,
		fmt.Sprintf(`CREATE TABLE discussion_topics_new (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			subject_id      INTEGER NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
			parent_topic_id INTEGER REFERENCES discussion_topics(id) ON DELETE CASCADE,
			title           TEXT    NOT NULL CHECK (length(title) BETWEEN 1 AND %d),
			description     TEXT    NOT NULL,
			created_at      TEXT    NOT NULL DEFAULT (datetime('now'))
		)`, TitleMaxLength),
		`INSERT INTO discussion_topics_new (id, subject_id, parent_topic_id, title, description, created_at)
		 SELECT id, subject_id, parent_topic_id, title, description, created_at FROM discussion_topics`,
		`DROP TABLE discussion_topics`,
		`ALTER TABLE discussion_topics_new RENAME TO discussion_topics`,
		`CREATE INDEX IF NOT EXISTS idx_topics_subject ON discussion_topics(subject_id, parent_topic_id)`,
	); err != nil {
		return err
	}
	return currentTriggers.create(ctx, tx)
}

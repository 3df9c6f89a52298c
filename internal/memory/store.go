// Package memory implements the discussion memory store.
//
// It keeps subjects, topic forests, discussion logs, decisions and tasks in
// SQLite, and maintains a trigger-driven FTS5 (trigram) projection of topics,
// decisions and tasks for keyword search. Every write runs in a single
// transaction together with its index propagation.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HendryAvila/discussion-memory/internal/logging"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Subject is the root scope (a project) that owns topics and tasks.
type Subject struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// Topic is one node of a subject's discussion forest.
type Topic struct {
	ID            int64  `json:"id"`
	SubjectID     int64  `json:"subject_id"`
	ParentTopicID *int64 `json:"parent_topic_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CreatedAt     string `json:"created_at"`
}

// TopicNode is a topic with its loaded children.
type TopicNode struct {
	Topic
	Children []*TopicNode `json:"children"`
}

// TopicTree is the bounded result of a recursive topic fetch.
// Truncated is set when the node budget ran out before the walk finished;
// callers continue by fetching the tree from one of the returned nodes.
type TopicTree struct {
	Roots     []*TopicNode `json:"roots"`
	NodeCount int          `json:"node_count"`
	Truncated bool         `json:"truncated"`
}

// LogEntry is one recorded exchange of a discussion.
type LogEntry struct {
	ID        int64  `json:"id"`
	TopicID   int64  `json:"topic_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Decision is an agreed conclusion plus its rationale.
type Decision struct {
	ID        int64  `json:"id"`
	TopicID   int64  `json:"topic_id"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// Task is a trackable unit of work owned by a subject.
type Task struct {
	ID          int64      `json:"id"`
	SubjectID   int64      `json:"subject_id"`
	TopicID     *int64     `json:"topic_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

// AddTopicParams holds the input for creating a topic.
type AddTopicParams struct {
	SubjectID     int64  `json:"subject_id"`
	ParentTopicID *int64 `json:"parent_topic_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description"`
}

// UpdateTopicParams holds partial update fields for a topic.
type UpdateTopicParams struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AddTaskParams holds the input for creating a task.
type AddTaskParams struct {
	SubjectID   int64  `json:"subject_id"`
	TopicID     *int64 `json:"topic_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTaskParams holds partial update fields for a task.
// UnlinkTopic clears topic_id and takes precedence over TopicID.
type UpdateTaskParams struct {
	Status      *TaskStatus `json:"status,omitempty"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	TopicID     *int64      `json:"topic_id,omitempty"`
	UnlinkTopic bool        `json:"unlink_topic,omitempty"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds memory store configuration.
type Config struct {
	DataDir          string
	DBPath           string
	MaxTopics        int
	MaxTreeNodes     int
	MaxLogs          int
	MaxDecisions     int
	MaxSearchResults int
	MaxTitleLength   int
	Logger           *logging.Logger
}

// DefaultConfig returns the default configuration for the memory store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".claude-code-memory"),
		MaxTopics:        10,
		MaxTreeNodes:     100,
		MaxLogs:          30,
		MaxDecisions:     30,
		MaxSearchResults: 50,
		MaxTitleLength:   TitleMaxLength,
	}
}

// Path returns the database file location.
func (c Config) Path() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "discussion.db")
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxTopics <= 0 {
		c.MaxTopics = def.MaxTopics
	}
	if c.MaxTreeNodes <= 0 {
		c.MaxTreeNodes = def.MaxTreeNodes
	}
	if c.MaxLogs <= 0 {
		c.MaxLogs = def.MaxLogs
	}
	if c.MaxDecisions <= 0 {
		c.MaxDecisions = def.MaxDecisions
	}
	if c.MaxSearchResults <= 0 {
		c.MaxSearchResults = def.MaxSearchResults
	}
	if c.MaxTitleLength <= 0 || c.MaxTitleLength > TitleMaxLength {
		c.MaxTitleLength = TitleMaxLength
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	return c
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent discussion memory backed by SQLite + FTS5.
type Store struct {
	db         *sql.DB
	cfg        Config
	log        *logging.Logger
	migrations []Migration
	hooks      storeHooks
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// dsn builds the modernc connection string. Pragmas given here are applied
// to every pooled connection, which is what foreign key enforcement needs.
func dsn(path string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_txlock=immediate",
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// Open opens the database without applying migrations.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	db, err := openDB("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("memory: ping database: %w", err)
	}

	return &Store{
		db:         db,
		cfg:        cfg,
		log:        cfg.Logger.With("component", "memory"),
		migrations: Migrations(),
		hooks:      defaultStoreHooks(),
	}, nil
}

// New opens the database and migrates it to the latest schema version.
func New(cfg Config) (*Store, error) {
	s, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("memory: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Config returns the effective store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// withTx runs fn inside one write transaction. Errors from fn that are
// already typed pass through unchanged; anything else becomes DATABASE_ERROR.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return dbError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return dbError(op, err)
	}
	if err := s.commitHook(tx); err != nil {
		_ = tx.Rollback()
		return dbError(op, err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func requireText(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", invalidParam("%s is required", field)
	}
	return v, nil
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return invalidParam("%s must be a positive integer", field)
	}
	return nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func scanNullableInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// Truncate shortens s to max runes, appending "..." when it was cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}

// timeLayout matches SQLite's datetime('now').
const timeLayout = "2006-01-02 15:04:05"

// FormatTime renders t the way created_at columns store it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

package memory_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// assertIndexConsistent checks that search_index holds exactly one row per
// topic, task and decision with the owning subject and current title, and
// that the FTS table holds exactly those rows.
func assertIndexConsistent(t *testing.T, db *sql.DB) {
	t.Helper()

	const expected = `
		SELECT 'topic', id, subject_id, title FROM discussion_topics
		UNION ALL
		SELECT 'task', id, subject_id, title FROM tasks
		UNION ALL
		SELECT 'decision', d.id, t.subject_id, d.decision
		FROM decisions d JOIN discussion_topics t ON t.id = d.topic_id`
	const actual = `SELECT source_type, source_id, subject_id, title FROM search_index`

	if n := countRows(t, db, `SELECT COUNT(*) FROM (`+expected+` EXCEPT `+actual+`)`); n != 0 {
		t.Errorf("%d source rows missing from search_index", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM (`+actual+` EXCEPT `+expected+`)`); n != 0 {
		t.Errorf("%d stale rows in search_index", n)
	}
	want := countRows(t, db, `SELECT COUNT(*) FROM (`+expected+`)`)
	if got := countRows(t, db, `SELECT COUNT(*) FROM search_index`); got != want {
		t.Errorf("search_index rows = %d, want %d", got, want)
	}
	if got := countRows(t, db, `SELECT COUNT(*) FROM search_index_fts_docsize`); got != want {
		t.Errorf("fts rows = %d, want %d", got, want)
	}

	rows, err := db.Query(`SELECT id, title FROM search_index`)
	if err != nil {
		t.Fatalf("read search_index: %v", err)
	}
	type entry struct {
		id    int64
		title string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.title); err != nil {
			t.Fatalf("scan: %v", err)
		}
		entries = append(entries, e)
	}
	rows.Close()

	for _, e := range entries {
		if utf8.RuneCountInString(e.title) < memory.MinKeywordLength {
			continue
		}
		phrase := `"` + strings.ReplaceAll(e.title, `"`, `""`) + `"`
		n := countRows(t, db,
			`SELECT COUNT(*) FROM search_index_fts WHERE search_index_fts MATCH ? AND rowid = ?`, phrase, e.id)
		if n != 1 {
			t.Errorf("index row %d (%q) not matchable by its title", e.id, e.title)
		}
	}
}

func searchIDs(t *testing.T, s *memory.Store, subjectID int64, keyword string, opts memory.SearchOptions) []string {
	t.Helper()
	hits, err := s.Search(context.Background(), subjectID, keyword, opts)
	if err != nil {
		t.Fatalf("Search(%q): %v", keyword, err)
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = fmt.Sprintf("%s:%d", h.Type, h.ID)
	}
	return out
}

// ─── Keyword search ─────────────────────────────────────────────────────────

func TestSearch_TrigramSubstring(t *testing.T) {
	s := newTestStore(t)
	sub := mustSubject(t, s, "proj")
	topic, err := s.AddTopic(context.Background(), memory.AddTopicParams{
		SubjectID: sub.ID, Title: "PostgreSQL migration", Description: "moving off sqlite",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, kw := range []string{"greSQ", "postgresql", "off sql", "migration"} {
		got := searchIDs(t, s, sub.ID, kw, memory.SearchOptions{})
		if len(got) != 1 || got[0] != fmt.Sprintf("topic:%d", topic.ID) {
			t.Errorf("Search(%q) = %v, want [topic:%d]", kw, got, topic.ID)
		}
	}
	if got := searchIDs(t, s, sub.ID, "mongodb", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("Search(mongodb) = %v, want none", got)
	}
}

func TestSearch_KeywordTooShort(t *testing.T) {
	s := newTestStore(t)
	sub := mustSubject(t, s, "proj")
	for _, kw := range []string{"", "ab", "  ab  ", "日本"} {
		_, err := s.Search(context.Background(), sub.ID, kw, memory.SearchOptions{})
		wantCode(t, err, memory.CodeInvalidParameter)
	}
	if _, err := s.Search(context.Background(), sub.ID, "日本語", memory.SearchOptions{}); err != nil {
		t.Errorf("three CJK runes should be accepted: %v", err)
	}
}

func TestSearch_KeywordIsLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := mustSubject(t, s, "proj")
	topic := mustTopic(t, s, sub.ID, nil, "syntax")
	d, err := s.AddDecision(ctx, topic.ID, `use "cache OR queue" title:foo*`, "operators everywhere")
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("decision:%d", d.ID)

	for _, kw := range []string{`"cache OR queue"`, `title:foo*`, `OR q`, `foo*`} {
		got := searchIDs(t, s, sub.ID, kw, memory.SearchOptions{})
		if len(got) != 1 || got[0] != want {
			t.Errorf("Search(%q) = %v, want [%s]", kw, got, want)
		}
	}
	for _, kw := range []string{`NOT syntax`, `cache AND`, `(((`} {
		if _, err := s.Search(ctx, sub.ID, kw, memory.SearchOptions{}); err != nil {
			t.Errorf("Search(%q) should not fail: %v", kw, err)
		}
	}
}

func TestSearch_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := mustSubject(t, s, "proj")
	other := mustSubject(t, s, "other")

	bodyHit := mustTopic(t, s, sub.ID, nil, "storage layer")
	if _, err := s.UpdateTopic(ctx, bodyHit.ID, memory.UpdateTopicParams{Description: strPtr("we compared redis against memcached")}); err != nil {
		t.Fatal(err)
	}
	titleHit := mustTopic(t, s, sub.ID, nil, "redis eviction")
	task, err := s.AddTask(ctx, memory.AddTaskParams{SubjectID: sub.ID, Title: "benchmark redis", Description: "numbers"})
	if err != nil {
		t.Fatal(err)
	}
	mustTopic(t, s, other.ID, nil, "redis elsewhere")

	recent := searchIDs(t, s, sub.ID, "redis", memory.SearchOptions{})
	if len(recent) != 3 {
		t.Fatalf("Search(redis) = %v, want 3 hits in subject", recent)
	}
	if recent[0] != fmt.Sprintf("task:%d", task.ID) {
		t.Errorf("recent order starts with %s, want task:%d", recent[0], task.ID)
	}

	tasks := searchIDs(t, s, sub.ID, "redis", memory.SearchOptions{Type: memory.SourceTask})
	if len(tasks) != 1 || tasks[0] != fmt.Sprintf("task:%d", task.ID) {
		t.Errorf("type=task = %v", tasks)
	}

	ranked := searchIDs(t, s, sub.ID, "redis", memory.SearchOptions{Type: memory.SourceTopic, Order: memory.OrderRelevance})
	if len(ranked) != 2 || ranked[0] != fmt.Sprintf("topic:%d", titleHit.ID) {
		t.Errorf("relevance order = %v, want title match topic:%d first", ranked, titleHit.ID)
	}

	limited := searchIDs(t, s, sub.ID, "redis", memory.SearchOptions{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d hits", len(limited))
	}

	_, err = s.Search(ctx, sub.ID, "redis", memory.SearchOptions{Type: "log"})
	wantCode(t, err, memory.CodeInvalidParameter)
	_, err = s.Search(ctx, sub.ID, "redis", memory.SearchOptions{Order: "oldest"})
	wantCode(t, err, memory.CodeInvalidParameter)
}

func TestGetByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := mustSubject(t, s, "proj")
	topic := mustTopic(t, s, sub.ID, nil, "lookup")
	d, err := s.AddDecision(ctx, topic.ID, "decided", "reason")
	if err != nil {
		t.Fatal(err)
	}
	task, err := s.AddTask(ctx, memory.AddTaskParams{SubjectID: sub.ID, Title: "todo", Description: "desc"})
	if err != nil {
		t.Fatal(err)
	}

	item, err := s.GetByID(ctx, "topic", topic.ID)
	if err != nil || item.Topic == nil || item.Topic.ID != topic.ID {
		t.Errorf("GetByID(topic) = %+v, %v", item, err)
	}
	item, err = s.GetByID(ctx, "decision", d.ID)
	if err != nil || item.Decision == nil || item.Decision.Reason != "reason" {
		t.Errorf("GetByID(decision) = %+v, %v", item, err)
	}
	item, err = s.GetByID(ctx, "task", task.ID)
	if err != nil || item.Task == nil || item.Task.Title != "todo" {
		t.Errorf("GetByID(task) = %+v, %v", item, err)
	}

	_, err = s.GetByID(ctx, "task", 999)
	wantCode(t, err, memory.CodeNotFound)
	_, err = s.GetByID(ctx, "log", 1)
	wantCode(t, err, memory.CodeInvalidParameter)
	_, err = s.GetByID(ctx, "", 1)
	wantCode(t, err, memory.CodeInvalidParameter)
}

// ─── Index maintenance ──────────────────────────────────────────────────────

func TestIndex_WritesPropagate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	sub := mustSubject(t, s, "proj")
	topic := mustTopic(t, s, sub.ID, nil, "original heading")
	task, err := s.AddTask(ctx, memory.AddTaskParams{SubjectID: sub.ID, TopicID: &topic.ID, Title: "write tests", Description: "table driven"})
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.AddDecision(ctx, topic.ID, "adopt trigram", "substring search")
	if err != nil {
		t.Fatal(err)
	}
	assertIndexConsistent(t, db)

	if _, err := s.UpdateTopic(ctx, topic.ID, memory.UpdateTopicParams{
		Title:       strPtr("renamed heading"),
		Description: strPtr("rewritten notes"),
	}); err != nil {
		t.Fatal(err)
	}
	if got := searchIDs(t, s, sub.ID, "original", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("old topic title still matches: %v", got)
	}
	if got := searchIDs(t, s, sub.ID, "renamed", memory.SearchOptions{}); len(got) != 1 {
		t.Errorf("new topic title not found: %v", got)
	}

	if _, err := s.UpdateTask(ctx, task.ID, memory.UpdateTaskParams{Description: strPtr("property based")}); err != nil {
		t.Fatal(err)
	}
	if got := searchIDs(t, s, sub.ID, "table driven", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("old task body still matches: %v", got)
	}
	if got := searchIDs(t, s, sub.ID, "property", memory.SearchOptions{}); len(got) != 1 {
		t.Errorf("new task body not found: %v", got)
	}

	// Status changes do not touch indexed columns.
	if _, err := s.UpdateTaskStatus(ctx, task.ID, "completed"); err != nil {
		t.Fatal(err)
	}
	assertIndexConsistent(t, db)

	mustExec(t, db, `UPDATE decisions SET decision = 'adopt unicode61', reason = 'word search' WHERE id = ?`, d.ID)
	if got := searchIDs(t, s, sub.ID, "trigram", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("old decision text still matches: %v", got)
	}
	if got := searchIDs(t, s, sub.ID, "unicode61", memory.SearchOptions{}); len(got) != 1 {
		t.Errorf("updated decision not found: %v", got)
	}
	assertIndexConsistent(t, db)

	if err := s.DeleteTopic(ctx, topic.ID); err != nil {
		t.Fatal(err)
	}
	if got := searchIDs(t, s, sub.ID, "unicode61", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("cascaded decision still matches: %v", got)
	}
	assertIndexConsistent(t, db)
}

func TestIndex_ManyDecisionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	sub := mustSubject(t, s, "proj")
	topic := mustTopic(t, s, sub.ID, nil, "batch")

	const n = 40
	for i := 0; i < n; i++ {
		if _, err := s.AddDecision(ctx, topic.ID, fmt.Sprintf("choice-%03d", i), "bulk"); err != nil {
			t.Fatalf("AddDecision %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		kw := fmt.Sprintf("choice-%03d", i)
		if got := searchIDs(t, s, sub.ID, kw, memory.SearchOptions{Type: memory.SourceDecision}); len(got) != 1 {
			t.Errorf("Search(%q) = %v, want 1 hit", kw, got)
		}
	}
	if got := searchIDs(t, s, sub.ID, "choice-", memory.SearchOptions{}); len(got) != n {
		t.Errorf("broad search returned %d hits", len(got))
	}
	assertIndexConsistent(t, db)

	if err := s.DeleteSubject(ctx, sub.ID); err != nil {
		t.Fatal(err)
	}
	if c := countRows(t, db, `SELECT COUNT(*) FROM search_index`); c != 0 {
		t.Errorf("search_index rows after subject delete = %d", c)
	}
	assertIndexConsistent(t, db)
}

func TestIndex_DecisionsFollowTopicSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	from := mustSubject(t, s, "from")
	to := mustSubject(t, s, "to")
	topic := mustTopic(t, s, from.ID, nil, "travelling topic")
	d, err := s.AddDecision(ctx, topic.ID, "portable decision", "moves along")
	if err != nil {
		t.Fatal(err)
	}

	mustExec(t, db, `UPDATE discussion_topics SET subject_id = ? WHERE id = ?`, to.ID, topic.ID)

	if got := searchIDs(t, s, from.ID, "portable", memory.SearchOptions{}); len(got) != 0 {
		t.Errorf("decision still indexed under old subject: %v", got)
	}
	got := searchIDs(t, s, to.ID, "portable", memory.SearchOptions{})
	if len(got) != 1 || got[0] != fmt.Sprintf("decision:%d", d.ID) {
		t.Errorf("decision not re-resolved to new subject: %v", got)
	}
	assertIndexConsistent(t, db)
}

func TestIndex_CopiesSourceCreatedAt(t *testing.T) {
	s := newTestStore(t)
	db := s.DB()
	sub := mustSubject(t, s, "proj")
	id := lastID(t, mustExec(t, db,
		`INSERT INTO discussion_topics (subject_id, title, description, created_at)
		 VALUES (?, 'backdated', 'd', '2020-01-02 03:04:05')`, sub.ID))

	var at string
	if err := db.QueryRow(`SELECT created_at FROM search_index WHERE source_type = 'topic' AND source_id = ?`, id).Scan(&at); err != nil {
		t.Fatal(err)
	}
	if at != "2020-01-02 03:04:05" {
		t.Errorf("index created_at = %q, want source value", at)
	}
}

func TestTaskUpdatedAtIsRefreshed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	db := s.DB()
	sub := mustSubject(t, s, "proj")
	task, err := s.AddTask(ctx, memory.AddTaskParams{SubjectID: sub.ID, Title: "touch", Description: "me"})
	if err != nil {
		t.Fatal(err)
	}

	// An explicit updated_at write is kept as is.
	mustExec(t, db, `UPDATE tasks SET updated_at = '2000-01-01 00:00:00' WHERE id = ?`, task.ID)
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UpdatedAt != "2000-01-01 00:00:00" {
		t.Fatalf("UpdatedAt = %q, want explicit value kept", got.UpdatedAt)
	}

	updated, err := s.UpdateTaskStatus(ctx, task.ID, "in_progress")
	if err != nil {
		t.Fatal(err)
	}
	if updated.UpdatedAt == "2000-01-01 00:00:00" {
		t.Error("UpdatedAt was not refreshed by the status change")
	}
}

// ─── Nullable-topic era (schema version 3) ──────────────────────────────────

func TestIndex_DecisionEligibilityTransitions(t *testing.T) {
	s := openUnmigrated(t)
	ctx := context.Background()
	db := s.DB()
	if err := s.MigrateTo(ctx, 3); err != nil {
		t.Fatalf("MigrateTo(3): %v", err)
	}

	subID := lastID(t, mustExec(t, db, `INSERT INTO subjects (name, description) VALUES ('era', 'v3')`))
	topicA := lastID(t, mustExec(t, db, `INSERT INTO discussion_topics (subject_id, title) VALUES (?, 'topic alpha')`, subID))
	topicB := lastID(t, mustExec(t, db, `INSERT INTO discussion_topics (subject_id, title) VALUES (?, 'topic beta')`, subID))
	decID := lastID(t, mustExec(t, db, `INSERT INTO decisions (decision, reason) VALUES ('floating decision', NULL)`))

	indexed := func() int {
		return countRows(t, db, `SELECT COUNT(*) FROM search_index WHERE source_type = 'decision' AND source_id = ?`, decID)
	}
	matches := func() int {
		return countRows(t, db,
			`SELECT COUNT(*) FROM search_index_fts WHERE search_index_fts MATCH '"floating"'`)
	}

	if indexed() != 0 || matches() != 0 {
		t.Fatal("decision without topic must not be indexed")
	}

	// ineligible -> eligible
	mustExec(t, db, `UPDATE decisions SET topic_id = ? WHERE id = ?`, topicA, decID)
	if indexed() != 1 || matches() != 1 {
		t.Fatalf("after attaching: indexed=%d matches=%d, want 1/1", indexed(), matches())
	}

	// eligible -> eligible
	mustExec(t, db, `UPDATE decisions SET topic_id = ?, decision = 'floating choice' WHERE id = ?`, topicB, decID)
	if indexed() != 1 || matches() != 1 {
		t.Fatalf("after moving: indexed=%d matches=%d, want 1/1", indexed(), matches())
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM search_index_fts WHERE search_index_fts MATCH '"decision"'`); n != 0 {
		t.Errorf("stale decision text still matches %d rows", n)
	}

	// eligible -> ineligible
	mustExec(t, db, `UPDATE decisions SET topic_id = NULL WHERE id = ?`, decID)
	if indexed() != 0 || matches() != 0 {
		t.Fatalf("after detaching: indexed=%d matches=%d, want 0/0", indexed(), matches())
	}

	// Reattach and carry the row through the rest of the history.
	mustExec(t, db, `UPDATE decisions SET topic_id = ? WHERE id = ?`, topicA, decID)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	assertIndexConsistent(t, db)
	got := searchIDs(t, s, subID, "floating", memory.SearchOptions{})
	if len(got) != 1 || got[0] != fmt.Sprintf("decision:%d", decID) {
		t.Errorf("after migrating: %v", got)
	}
}

func TestIndex_TopicDeleteDetachesDecisionAtV3(t *testing.T) {
	s := openUnmigrated(t)
	ctx := context.Background()
	db := s.DB()
	if err := s.MigrateTo(ctx, 3); err != nil {
		t.Fatalf("MigrateTo(3): %v", err)
	}

	subID := lastID(t, mustExec(t, db, `INSERT INTO subjects (name, description) VALUES ('era', 'v3')`))
	topicID := lastID(t, mustExec(t, db, `INSERT INTO discussion_topics (subject_id, title) VALUES (?, 'doomed topic')`, subID))
	decID := lastID(t, mustExec(t, db,
		`INSERT INTO decisions (topic_id, decision, reason) VALUES (?, 'orphaned choice', 'kept')`, topicID))

	if n := countRows(t, db, `SELECT COUNT(*) FROM search_index WHERE source_type = 'decision' AND source_id = ?`, decID); n != 1 {
		t.Fatalf("decision index rows before delete = %d, want 1", n)
	}

	// ON DELETE SET NULL turns the decision ineligible through the update path.
	mustExec(t, db, `DELETE FROM discussion_topics WHERE id = ?`, topicID)

	if n := countRows(t, db, `SELECT COUNT(*) FROM decisions WHERE id = ? AND topic_id IS NULL`, decID); n != 1 {
		t.Fatalf("decision was not detached: %d rows", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM search_index WHERE source_type = 'decision' AND source_id = ?`, decID); n != 0 {
		t.Errorf("decision index rows after delete = %d, want 0", n)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM search_index_fts WHERE search_index_fts MATCH '"orphaned"'`); n != 0 {
		t.Errorf("fts rows for detached decision = %d, want 0", n)
	}
	assertIndexConsistent(t, db)
}

func strPtr(s string) *string { return &s }

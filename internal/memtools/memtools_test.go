package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestStore creates a memory.Store in a temp directory for testing.
func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.New(memory.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// call runs a tool and decodes a successful result into out.
func call(t *testing.T, tool Tool, args map[string]interface{}, out interface{}) {
	t.Helper()
	result, err := tool.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("%s: unexpected Go error: %v", tool.Definition().Name, err)
	}
	if result.IsError {
		t.Fatalf("%s: unexpected error result: %s", tool.Definition().Name, resultText(result))
	}
	if out != nil {
		if err := json.Unmarshal([]byte(resultText(result)), out); err != nil {
			t.Fatalf("%s: decode %q: %v", tool.Definition().Name, resultText(result), err)
		}
	}
}

// callErr runs a tool that must fail and returns the error code.
func callErr(t *testing.T, tool Tool, args map[string]interface{}) memory.ErrorCode {
	t.Helper()
	result, err := tool.Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("%s: unexpected Go error: %v", tool.Definition().Name, err)
	}
	if !result.IsError {
		t.Fatalf("%s: expected error result, got %s", tool.Definition().Name, resultText(result))
	}
	var body errorBody
	if err := json.Unmarshal([]byte(resultText(result)), &body); err != nil {
		t.Fatalf("error payload %q is not JSON: %v", resultText(result), err)
	}
	if body.Error.Message == "" {
		t.Errorf("error payload without message: %s", resultText(result))
	}
	return body.Error.Code
}

func seed(t *testing.T, store *memory.Store) (subjectID, topicID int64) {
	t.Helper()
	var sub memory.Subject
	call(t, NewAddSubjectTool(store), map[string]interface{}{
		"name": "dmem", "description": "discussion memory",
	}, &sub)
	var topic memory.Topic
	call(t, NewAddTopicTool(store), map[string]interface{}{
		"subject_id": float64(sub.ID), "title": "Search index", "description": "trigram or word tokenizer",
	}, &topic)
	return sub.ID, topic.ID
}

// ─── Registry ────────────────────────────────────────────────────────────────

func TestAll_DefinitionsAreComplete(t *testing.T) {
	store := newTestStore(t)
	tools := All(store)
	if len(tools) != 19 {
		t.Fatalf("All() returned %d tools, want 19", len(tools))
	}

	required := map[string][]string{
		"add_subject":          {"name", "description"},
		"add_topic":            {"subject_id", "title", "description"},
		"get_topics":           {"subject_id"},
		"get_decided_topics":   {"subject_id"},
		"get_undecided_topics": {"subject_id"},
		"get_topic_tree":       {"subject_id"},
		"move_topic":           {"topic_id"},
		"update_topic":         {"topic_id"},
		"delete_topic":         {"topic_id"},
		"add_log":              {"topic_id", "content"},
		"get_logs":             {"topic_id"},
		"add_decision":         {"topic_id", "decision", "reason"},
		"get_decisions":        {"topic_id"},
		"add_task":             {"subject_id", "title", "description"},
		"get_tasks":            {"subject_id"},
		"update_task":          {"task_id"},
		"search":               {"subject_id", "keyword"},
		"get_by_id":            {"type", "id"},
		"list_subjects":        nil,
	}

	seen := map[string]bool{}
	for _, tool := range tools {
		def := tool.Definition()
		if seen[def.Name] {
			t.Errorf("duplicate tool name %q", def.Name)
		}
		seen[def.Name] = true

		want, ok := required[def.Name]
		if !ok {
			t.Errorf("unexpected tool %q", def.Name)
			continue
		}
		if strings.Join(def.InputSchema.Required, ",") != strings.Join(want, ",") {
			t.Errorf("%s required = %v, want %v", def.Name, def.InputSchema.Required, want)
		}
		for _, key := range want {
			if _, ok := def.InputSchema.Properties[key]; !ok {
				t.Errorf("%s: missing %q property", def.Name, key)
			}
		}
	}
}

// ─── Argument handling ───────────────────────────────────────────────────────

func TestIDArguments(t *testing.T) {
	store := newTestStore(t)
	subjectID, _ := seed(t, store)
	tool := NewGetTopicsTool(store)

	tests := []struct {
		name string
		args map[string]interface{}
		want memory.ErrorCode
	}{
		{"missing", map[string]interface{}{}, memory.CodeInvalidParameter},
		{"fractional", map[string]interface{}{"subject_id": 1.5}, memory.CodeInvalidParameter},
		{"not a number", map[string]interface{}{"subject_id": "abc"}, memory.CodeInvalidParameter},
		{"wrong type", map[string]interface{}{"subject_id": true}, memory.CodeInvalidParameter},
		{"zero", map[string]interface{}{"subject_id": float64(0)}, memory.CodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := callErr(t, tool, tt.args); got != tt.want {
				t.Errorf("code = %s, want %s", got, tt.want)
			}
		})
	}

	// Numeric strings are accepted.
	var out struct {
		Count int `json:"count"`
	}
	call(t, tool, map[string]interface{}{"subject_id": fmt.Sprint(subjectID)}, &out)
	if out.Count != 1 {
		t.Errorf("count = %d, want 1", out.Count)
	}
}

// ─── Subjects ────────────────────────────────────────────────────────────────

func TestSubjectTools(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)

	if code := callErr(t, NewAddSubjectTool(store), map[string]interface{}{
		"name": "dmem", "description": "again",
	}); code != memory.CodeDatabaseError {
		t.Errorf("duplicate subject code = %s, want DATABASE_ERROR", code)
	}
	if code := callErr(t, NewAddSubjectTool(store), map[string]interface{}{
		"name": "  ", "description": "blank",
	}); code != memory.CodeInvalidParameter {
		t.Errorf("blank name code = %s, want INVALID_PARAMETER", code)
	}

	var list struct {
		Subjects []memory.Subject `json:"subjects"`
	}
	call(t, NewListSubjectsTool(store), nil, &list)
	if len(list.Subjects) != 1 || list.Subjects[0].Name != "dmem" {
		t.Errorf("subjects = %+v", list.Subjects)
	}
}

// ─── Topics ──────────────────────────────────────────────────────────────────

func TestTopicTools(t *testing.T) {
	store := newTestStore(t)
	subjectID, rootID := seed(t, store)
	sid := float64(subjectID)

	var child memory.Topic
	call(t, NewAddTopicTool(store), map[string]interface{}{
		"subject_id": sid, "parent_topic_id": float64(rootID),
		"title": "Tokenizer", "description": "which tokenizer",
	}, &child)
	if child.ParentTopicID == nil || *child.ParentTopicID != rootID {
		t.Fatalf("child parent = %v, want %d", child.ParentTopicID, rootID)
	}

	if code := callErr(t, NewAddTopicTool(store), map[string]interface{}{
		"subject_id": sid, "parent_topic_id": float64(9999), "title": "x", "description": "y",
	}); code != memory.CodeInvalidParameter {
		t.Errorf("unknown parent code = %s, want INVALID_PARAMETER", code)
	}

	var topics struct {
		Topics []memory.Topic `json:"topics"`
		Limit  int            `json:"limit"`
	}
	call(t, NewGetTopicsTool(store), map[string]interface{}{"subject_id": sid, "limit": float64(500)}, &topics)
	if topics.Limit != 10 {
		t.Errorf("limit = %d, want clamped to 10", topics.Limit)
	}
	if len(topics.Topics) != 1 || topics.Topics[0].ID != rootID {
		t.Errorf("top-level topics = %+v", topics.Topics)
	}

	call(t, NewAddDecisionTool(store), map[string]interface{}{
		"topic_id": float64(child.ID), "decision": "trigram", "reason": "substring match for CJK",
	}, nil)

	call(t, NewGetDecidedTopicsTool(store), map[string]interface{}{
		"subject_id": sid, "parent_topic_id": float64(rootID),
	}, &topics)
	if len(topics.Topics) != 1 || topics.Topics[0].ID != child.ID {
		t.Errorf("decided = %+v", topics.Topics)
	}
	call(t, NewGetUndecidedTopicsTool(store), map[string]interface{}{"subject_id": sid}, &topics)
	if len(topics.Topics) != 1 || topics.Topics[0].ID != rootID {
		t.Errorf("undecided = %+v", topics.Topics)
	}

	var tree memory.TopicTree
	call(t, NewGetTopicTreeTool(store), map[string]interface{}{"subject_id": sid}, &tree)
	if tree.NodeCount != 2 || len(tree.Roots) != 1 || len(tree.Roots[0].Children) != 1 {
		t.Errorf("tree = %+v", tree)
	}

	if code := callErr(t, NewMoveTopicTool(store), map[string]interface{}{
		"topic_id": float64(rootID), "parent_topic_id": float64(child.ID),
	}); code != memory.CodeInvalidParameter {
		t.Errorf("cycle code = %s, want INVALID_PARAMETER", code)
	}
	var moved memory.Topic
	call(t, NewMoveTopicTool(store), map[string]interface{}{
		"topic_id": float64(child.ID), "parent_topic_id": float64(0),
	}, &moved)
	if moved.ParentTopicID != nil {
		t.Errorf("parent after move to 0 = %v, want top-level", *moved.ParentTopicID)
	}

	var updated memory.Topic
	call(t, NewUpdateTopicTool(store), map[string]interface{}{
		"topic_id": float64(child.ID), "title": "Tokenizer choice",
	}, &updated)
	if updated.Title != "Tokenizer choice" || updated.Description != "which tokenizer" {
		t.Errorf("updated = %+v", updated)
	}
	if code := callErr(t, NewUpdateTopicTool(store), map[string]interface{}{
		"topic_id": float64(child.ID),
	}); code != memory.CodeInvalidParameter {
		t.Errorf("empty update code = %s, want INVALID_PARAMETER", code)
	}

	call(t, NewDeleteTopicTool(store), map[string]interface{}{"topic_id": float64(child.ID)}, nil)
	if code := callErr(t, NewDeleteTopicTool(store), map[string]interface{}{
		"topic_id": float64(child.ID),
	}); code != memory.CodeNotFound {
		t.Errorf("second delete code = %s, want NOT_FOUND", code)
	}
}

// ─── Logs & decisions ────────────────────────────────────────────────────────

func TestGetLogs_Paging(t *testing.T) {
	store := newTestStore(t)
	_, topicID := seed(t, store)
	tid := float64(topicID)

	for i := 0; i < 3; i++ {
		call(t, NewAddLogTool(store), map[string]interface{}{
			"topic_id": tid, "content": fmt.Sprintf("exchange %d", i),
		}, nil)
	}

	var first page[memory.LogEntry]
	call(t, NewGetLogsTool(store), map[string]interface{}{"topic_id": tid, "limit": float64(2)}, &first)
	if first.Count != 2 || first.Items[0].Content != "exchange 0" {
		t.Fatalf("first page = %+v", first)
	}
	next := first.Items[1].ID + 1
	wantHint := fmt.Sprintf("Showing 2 entries. Pass start_id=%d to continue.", next)
	if first.Hint != wantHint {
		t.Errorf("hint = %q, want %q", first.Hint, wantHint)
	}

	var second page[memory.LogEntry]
	call(t, NewGetLogsTool(store), map[string]interface{}{
		"topic_id": tid, "start_id": float64(next), "limit": float64(2),
	}, &second)
	if second.Count != 1 || second.Items[0].Content != "exchange 2" || second.Hint != "" {
		t.Errorf("second page = %+v", second)
	}

	if code := callErr(t, NewGetLogsTool(store), map[string]interface{}{
		"topic_id": tid, "start_id": float64(-1),
	}); code != memory.CodeInvalidParameter {
		t.Errorf("negative start_id code = %s", code)
	}
	if code := callErr(t, NewAddLogTool(store), map[string]interface{}{
		"topic_id": float64(9999), "content": "orphan",
	}); code != memory.CodeInvalidParameter && code != memory.CodeNotFound {
		t.Errorf("log on unknown topic code = %s", code)
	}
}

func TestDecisionTools(t *testing.T) {
	store := newTestStore(t)
	_, topicID := seed(t, store)
	tid := float64(topicID)

	if code := callErr(t, NewAddDecisionTool(store), map[string]interface{}{
		"topic_id": tid, "decision": "trigram",
	}); code != memory.CodeInvalidParameter {
		t.Errorf("missing reason code = %s, want INVALID_PARAMETER", code)
	}

	var d memory.Decision
	call(t, NewAddDecisionTool(store), map[string]interface{}{
		"topic_id": tid, "decision": "trigram", "reason": "CJK substrings",
	}, &d)

	var decisions page[memory.Decision]
	call(t, NewGetDecisionsTool(store), map[string]interface{}{"topic_id": tid}, &decisions)
	if decisions.Count != 1 || decisions.Items[0].ID != d.ID || decisions.Limit != 30 {
		t.Errorf("decisions = %+v", decisions)
	}
}

// ─── Tasks ───────────────────────────────────────────────────────────────────

func TestTaskTools(t *testing.T) {
	store := newTestStore(t)
	subjectID, topicID := seed(t, store)
	sid := float64(subjectID)

	var task memory.Task
	call(t, NewAddTaskTool(store), map[string]interface{}{
		"subject_id": sid, "topic_id": float64(topicID),
		"title": "Write migration", "description": "v3 trigger rewrite",
	}, &task)
	if task.Status != memory.TaskPending || task.TopicID == nil {
		t.Fatalf("task = %+v", task)
	}

	call(t, NewUpdateTaskTool(store), map[string]interface{}{
		"task_id": float64(task.ID), "status": "in_progress",
	}, &task)
	if task.Status != memory.TaskInProgress {
		t.Errorf("status = %s, want in_progress", task.Status)
	}

	if code := callErr(t, NewUpdateTaskTool(store), map[string]interface{}{
		"task_id": float64(task.ID), "status": "blocked",
	}); code != memory.CodeInvalidParameter {
		t.Errorf("blocked status code = %s, want INVALID_PARAMETER", code)
	}

	call(t, NewUpdateTaskTool(store), map[string]interface{}{
		"task_id": float64(task.ID), "topic_id": float64(0),
	}, &task)
	if task.TopicID != nil {
		t.Errorf("topic_id after unlink = %d, want nil", *task.TopicID)
	}

	var list struct {
		Tasks []memory.Task `json:"tasks"`
		Count int           `json:"count"`
	}
	call(t, NewGetTasksTool(store), map[string]interface{}{"subject_id": sid, "status": "in_progress"}, &list)
	if list.Count != 1 {
		t.Errorf("in_progress tasks = %d, want 1", list.Count)
	}
	call(t, NewGetTasksTool(store), map[string]interface{}{"subject_id": sid, "status": "completed"}, &list)
	if list.Count != 0 {
		t.Errorf("completed tasks = %d, want 0", list.Count)
	}
	if code := callErr(t, NewGetTasksTool(store), map[string]interface{}{
		"subject_id": sid, "status": "done",
	}); code != memory.CodeInvalidParameter {
		t.Errorf("bad status filter code = %s", code)
	}
}

// ─── Search ──────────────────────────────────────────────────────────────────

func TestSearchAndGetByID(t *testing.T) {
	store := newTestStore(t)
	subjectID, topicID := seed(t, store)
	sid := float64(subjectID)

	call(t, NewAddDecisionTool(store), map[string]interface{}{
		"topic_id": float64(topicID), "decision": "Use the trigram tokenizer", "reason": "substring search",
	}, nil)

	var out struct {
		Results []memory.SearchHit `json:"results"`
		Count   int                `json:"count"`
	}
	call(t, NewSearchTool(store), map[string]interface{}{"subject_id": sid, "keyword": "trigram"}, &out)
	if out.Count != 2 {
		t.Fatalf("hits = %+v, want topic and decision", out.Results)
	}

	call(t, NewSearchTool(store), map[string]interface{}{
		"subject_id": sid, "keyword": "trigram", "type": "decision",
	}, &out)
	if out.Count != 1 || out.Results[0].Type != memory.SourceDecision {
		t.Fatalf("decision hits = %+v", out.Results)
	}

	var item memory.Item
	call(t, NewGetByIDTool(store), map[string]interface{}{
		"type": "decision", "id": float64(out.Results[0].ID),
	}, &item)
	if item.Decision == nil || item.Decision.Reason != "substring search" {
		t.Errorf("item = %+v", item)
	}

	for name, args := range map[string]map[string]interface{}{
		"short keyword": {"subject_id": sid, "keyword": "tr"},
		"bad type":      {"subject_id": sid, "keyword": "trigram", "type": "log"},
		"bad order":     {"subject_id": sid, "keyword": "trigram", "order": "oldest"},
	} {
		if code := callErr(t, NewSearchTool(store), args); code != memory.CodeInvalidParameter {
			t.Errorf("%s: code = %s, want INVALID_PARAMETER", name, code)
		}
	}

	if code := callErr(t, NewGetByIDTool(store), map[string]interface{}{
		"type": "task", "id": float64(12345),
	}); code != memory.CodeNotFound {
		t.Errorf("missing task code = %s, want NOT_FOUND", code)
	}
}

package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `{"type":"summary","summary":"earlier"}
{"type":"user","message":{"role":"user","content":"How should we search CJK?"}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Let me record that."},{"type":"tool_use","name":"mcp__plugin_dm_dm__add_decision","input":{"topic_id":55,"decision":"trigram","reason":"cjk"}}]}}
{"type":"user","toolUseResult":{"ok":true},"message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]}}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Done.\n<!-- [meta] subject: dm (id: 2) | topic: search (id: 55) -->"}]}}
{"type":"assistant","message":{"content":[{"type":"text","text":"tor`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func TestRead_SkipsNoiseAndTornLines(t *testing.T) {
	turns, err := Read(writeTranscript(t, sample))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("len(turns) = %d, want 4", len(turns))
	}
	if !turns[0].Human() || turns[0].Text != "How should we search CJK?" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if len(turns[1].ToolCalls) != 1 || !turns[1].ToolCalls[0].Is("add_decision") {
		t.Errorf("turn 1 tool calls = %+v", turns[1].ToolCalls)
	}
	if !turns[2].ToolResult || turns[2].Human() {
		t.Errorf("turn 2 should be a tool result: %+v", turns[2])
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := Read(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestToolCall(t *testing.T) {
	tests := []struct {
		name string
		call ToolCall
		tool string
		want bool
	}{
		{"bare", ToolCall{Name: "add_log"}, "add_log", true},
		{"prefixed", ToolCall{Name: "mcp__server__add_log"}, "add_log", true},
		{"other tool", ToolCall{Name: "mcp__server__get_logs"}, "add_log", false},
		{"suffix without separator", ToolCall{Name: "xadd_log"}, "add_log", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.call.Is(tt.tool); got != tt.want {
				t.Errorf("Is(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}

	c := ToolCall{Input: map[string]any{"a": float64(7), "b": "8", "c": "x"}}
	if v, ok := c.IntArg("a"); !ok || v != 7 {
		t.Errorf("IntArg(a) = %d, %v", v, ok)
	}
	if v, ok := c.IntArg("b"); !ok || v != 8 {
		t.Errorf("IntArg(b) = %d, %v", v, ok)
	}
	if _, ok := c.IntArg("c"); ok {
		t.Error("IntArg(c) should fail")
	}
	if _, ok := c.IntArg("missing"); ok {
		t.Error("IntArg(missing) should fail")
	}
}

func TestSelectors(t *testing.T) {
	turns, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}

	last, ok := LastAssistant(turns)
	if !ok || !strings.Contains(last.Text, "[meta]") {
		t.Errorf("LastAssistant = %+v", last)
	}

	recent := AssistantTurns(turns, 5)
	if len(recent) != 2 || len(recent[0].ToolCalls) != 1 {
		t.Errorf("AssistantTurns = %+v", recent)
	}
	if got := AssistantTurns(turns, 1); len(got) != 1 || got[0].Text != last.Text {
		t.Errorf("AssistantTurns(1) = %+v", got)
	}

	relay := LastRelay(turns)
	if len(relay) != 4 {
		t.Errorf("LastRelay len = %d, want 4", len(relay))
	}

	topic55 := func(c ToolCall) bool { v, ok := c.IntArg("topic_id"); return ok && v == 55 }
	if !HasCall(turns, []string{"add_decision", "add_log"}, topic55) {
		t.Error("HasCall should find the add_decision for topic 55")
	}
	topic9 := func(c ToolCall) bool { v, ok := c.IntArg("topic_id"); return ok && v == 9 }
	if HasCall(turns, []string{"add_decision", "add_log"}, topic9) {
		t.Error("HasCall matched the wrong topic")
	}
}

func TestFormatRelay(t *testing.T) {
	turns, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	got := FormatRelay(LastRelay(turns), 10, 1000)
	for _, want := range []string{
		"User: How should",
		"[Tool: mcp__plugin_dm_dm__add_decision]",
		"[Tool Result]",
		"Assistant: Done.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatRelay missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "search CJK") {
		t.Errorf("user text was not cut:\n%s", got)
	}
}

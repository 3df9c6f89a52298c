// Package transcript reads assistant session transcripts (JSON Lines) into
// a flat list of turns.
//
// Each line is one entry. Entries of type "user" and "assistant" become
// turns; everything else (system, summary, file-history-snapshot) is
// skipped, as are lines that fail to parse. A transcript is being appended
// to while it is read, so a torn last line is normal.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is one tool_use block of an assistant turn.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// Is reports whether the call targets tool name. MCP clients prefix tool
// names with the server name ("mcp__<server>__add_decision"), so only the
// last "__" segment is compared.
func (c ToolCall) Is(name string) bool {
	if c.Name == name {
		return true
	}
	return strings.HasSuffix(c.Name, "__"+name)
}

// IntArg returns an integer argument, accepting JSON numbers and numeric
// strings.
func (c ToolCall) IntArg(key string) (int64, bool) {
	switch v := c.Input[key].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// Turn is one user or assistant entry.
type Turn struct {
	Role Role
	Text string
	// ToolCalls holds the tool_use blocks of an assistant turn.
	ToolCalls []ToolCall
	// ToolResult marks a user entry that only carries tool output.
	ToolResult bool
}

// Human reports whether the turn was typed by the user.
func (t Turn) Human() bool {
	return t.Role == RoleUser && !t.ToolResult
}

type entry struct {
	Type          string          `json:"type"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
	Message       struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type block struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Read parses the transcript file at path.
func Read(path string) ([]Turn, error) {
	if path == "" {
		return nil, errors.New("transcript: empty path")
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads JSON Lines entries from r.
func Parse(r io.Reader) ([]Turn, error) {
	br := bufio.NewReader(r)
	var turns []Turn
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			if t, ok := parseLine(line); ok {
				turns = append(turns, t)
			}
		}
		if errors.Is(err, io.EOF) {
			return turns, nil
		}
		if err != nil {
			return turns, fmt.Errorf("transcript: read: %w", err)
		}
	}
}

func parseLine(line []byte) (Turn, bool) {
	var e entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Turn{}, false
	}
	var t Turn
	switch e.Type {
	case "user":
		t.Role = RoleUser
		t.ToolResult = len(e.ToolUseResult) > 0 && string(e.ToolUseResult) != "null"
	case "assistant":
		t.Role = RoleAssistant
	default:
		return Turn{}, false
	}

	content := e.Message.Content
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		t.Text = s
		return t, true
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return t, true
	}
	var texts []string
	for _, r := range raw {
		var str string
		if json.Unmarshal(r, &str) == nil {
			texts = append(texts, str)
			continue
		}
		var b block
		if json.Unmarshal(r, &b) != nil {
			continue
		}
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "tool_use":
			t.ToolCalls = append(t.ToolCalls, ToolCall{Name: b.Name, Input: b.Input})
		case "tool_result":
			if t.Role == RoleUser {
				t.ToolResult = true
			}
		}
	}
	t.Text = strings.Join(texts, "\n")
	return t, true
}

// LastAssistant returns the most recent assistant turn.
func LastAssistant(turns []Turn) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleAssistant {
			return turns[i], true
		}
	}
	return Turn{}, false
}

// AssistantTurns returns the last n assistant turns in order.
func AssistantTurns(turns []Turn, n int) []Turn {
	var out []Turn
	for i := len(turns) - 1; i >= 0 && len(out) < n; i-- {
		if turns[i].Role == RoleAssistant {
			out = append(out, turns[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// LastRelay returns the turns from the last human message to the end.
func LastRelay(turns []Turn) []Turn {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Human() {
			return turns[i:]
		}
	}
	return nil
}

// HasCall reports whether any turn holds a call to one of names for which
// match returns true. A nil match accepts every call.
func HasCall(turns []Turn, names []string, match func(ToolCall) bool) bool {
	for _, t := range turns {
		for _, c := range t.ToolCalls {
			for _, name := range names {
				if c.Is(name) && (match == nil || match(c)) {
					return true
				}
			}
		}
	}
	return false
}

// FormatRelay renders a relay as plain text for summarizing. User text is
// cut to userMax runes and assistant text to assistantMax; tool calls show
// as their name only and tool output is elided.
func FormatRelay(relay []Turn, userMax, assistantMax int) string {
	var parts []string
	for _, t := range relay {
		switch {
		case t.ToolResult:
			parts = append(parts, "[Tool Result]")
		case t.Role == RoleUser:
			if t.Text != "" {
				parts = append(parts, "User: "+cut(t.Text, userMax))
			}
		case t.Role == RoleAssistant:
			text := t.Text
			for _, c := range t.ToolCalls {
				text = strings.TrimSpace(text + "\n[Tool: " + c.Name + "]")
			}
			if text != "" {
				parts = append(parts, "Assistant: "+cut(text, assistantMax))
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func cut(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

package memtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── AddSubjectTool ─────────────────────────────────────────────────────────

// AddSubjectTool handles the add_subject MCP tool.
type AddSubjectTool struct {
	store *memory.Store
}

// NewAddSubjectTool creates an AddSubjectTool with the given memory store.
func NewAddSubjectTool(store *memory.Store) *AddSubjectTool {
	return &AddSubjectTool{store: store}
}

// Definition returns the MCP tool definition for add_subject.
func (t *AddSubjectTool) Definition() mcp.Tool {
	return mcp.NewTool("add_subject",
		mcp.WithDescription(
			"Create a subject: the top-level container (usually one per project) that owns topics and tasks. "+
				"Names are unique.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Unique subject name"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What this subject covers"),
		),
	)
}

// Handle processes the add_subject tool call.
func (t *AddSubjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return respond(t.store.AddSubject(ctx, req.GetString("name", ""), req.GetString("description", "")))
}

// ─── ListSubjectsTool ───────────────────────────────────────────────────────

// ListSubjectsTool handles the list_subjects MCP tool.
type ListSubjectsTool struct {
	store *memory.Store
}

// NewListSubjectsTool creates a ListSubjectsTool with the given memory store.
func NewListSubjectsTool(store *memory.Store) *ListSubjectsTool {
	return &ListSubjectsTool{store: store}
}

// Definition returns the MCP tool definition for list_subjects.
func (t *ListSubjectsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_subjects",
		mcp.WithDescription("List every subject, newest first. Use the id in the meta tag and in other tools."),
	)
}

// Handle processes the list_subjects tool call.
func (t *ListSubjectsTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjects, err := t.store.ListSubjects(ctx)
	return respond(map[string]any{"subjects": subjects}, err)
}

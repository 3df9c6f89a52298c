package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── SearchTool ─────────────────────────────────────────────────────────────

// SearchTool handles the search MCP tool.
type SearchTool struct {
	store *memory.Store
}

// NewSearchTool creates a SearchTool with the given memory store.
func NewSearchTool(store *memory.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription(fmt.Sprintf(
			"Find topics, decisions and tasks of a subject containing a keyword as a literal substring "+
				"(at least %d characters, case-insensitive, any language). Fetch full rows with get_by_id.",
			memory.MinKeywordLength,
		)),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject to search"),
		),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Substring to look for; quotes and operators match literally"),
		),
		mcp.WithString("type",
			mcp.Description("Only return this kind of row"),
			mcp.Enum(memory.SourceTypeValues()...),
		),
		mcp.WithString("order",
			mcp.Description("recent (default) or relevance"),
			mcp.Enum(memory.SearchOrderValues()...),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum hits (default and cap: %d)", t.store.Config().MaxSearchResults)),
		),
	)
}

// Handle processes the search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	hits, err := t.store.Search(ctx, subjectID, req.GetString("keyword", ""), memory.SearchOptions{
		Type:  memory.SourceType(req.GetString("type", "")),
		Order: memory.SearchOrder(req.GetString("order", "")),
		Limit: intArg(req, "limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": hits, "count": len(hits)})
}

// ─── GetByIDTool ────────────────────────────────────────────────────────────

// GetByIDTool handles the get_by_id MCP tool.
type GetByIDTool struct {
	store *memory.Store
}

// NewGetByIDTool creates a GetByIDTool with the given memory store.
func NewGetByIDTool(store *memory.Store) *GetByIDTool {
	return &GetByIDTool{store: store}
}

// Definition returns the MCP tool definition for get_by_id.
func (t *GetByIDTool) Definition() mcp.Tool {
	return mcp.NewTool("get_by_id",
		mcp.WithDescription("Fetch the full topic, decision or task behind a search result."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Kind of row"),
			mcp.Enum(memory.SourceTypeValues()...),
		),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Row id from the search result"),
		),
	)
}

// Handle processes the get_by_id tool call.
func (t *GetByIDTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requiredID(req, "id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.GetByID(ctx, req.GetString("type", ""), id))
}

// ─── Registry ───────────────────────────────────────────────────────────────

// All returns every memory tool in registration order.
func All(store *memory.Store) []Tool {
	return []Tool{
		NewAddSubjectTool(store),
		NewListSubjectsTool(store),
		NewAddTopicTool(store),
		NewGetTopicsTool(store),
		NewGetDecidedTopicsTool(store),
		NewGetUndecidedTopicsTool(store),
		NewGetTopicTreeTool(store),
		NewMoveTopicTool(store),
		NewUpdateTopicTool(store),
		NewDeleteTopicTool(store),
		NewAddLogTool(store),
		NewGetLogsTool(store),
		NewAddDecisionTool(store),
		NewGetDecisionsTool(store),
		NewAddTaskTool(store),
		NewGetTasksTool(store),
		NewUpdateTaskTool(store),
		NewSearchTool(store),
		NewGetByIDTool(store),
	}
}

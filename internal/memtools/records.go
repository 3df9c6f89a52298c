package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── AddLogTool ─────────────────────────────────────────────────────────────

// AddLogTool handles the add_log MCP tool.
type AddLogTool struct {
	store *memory.Store
}

// NewAddLogTool creates an AddLogTool with the given memory store.
func NewAddLogTool(store *memory.Store) *AddLogTool {
	return &AddLogTool{store: store}
}

// Definition returns the MCP tool definition for add_log.
func (t *AddLogTool) Definition() mcp.Tool {
	return mcp.NewTool("add_log",
		mcp.WithDescription(
			"Append a summary of the discussion so far to a topic's log. "+
				"Record progress before switching to another topic.",
		),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic the log belongs to"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("What was discussed"),
		),
	)
}

// Handle processes the add_log tool call.
func (t *AddLogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, err := requiredID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.AddLog(ctx, topicID, req.GetString("content", "")))
}

// ─── GetLogsTool ────────────────────────────────────────────────────────────

// GetLogsTool handles the get_logs MCP tool.
type GetLogsTool struct {
	store *memory.Store
}

// NewGetLogsTool creates a GetLogsTool with the given memory store.
func NewGetLogsTool(store *memory.Store) *GetLogsTool {
	return &GetLogsTool{store: store}
}

// Definition returns the MCP tool definition for get_logs.
func (t *GetLogsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_logs",
		mcp.WithDescription("Page through a topic's discussion log, oldest first."),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic to read"),
		),
		mcp.WithNumber("start_id",
			mcp.Description("First log id to return (inclusive); use the hint of the previous page"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Page size (default and cap: %d)", t.store.Config().MaxLogs)),
		),
	)
}

// Handle processes the get_logs tool call.
func (t *GetLogsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, startID, limit, err := pageArgs(req, t.store.Config().MaxLogs)
	if err != nil {
		return errorResult(err), nil
	}
	logs, err := t.store.GetLogs(ctx, topicID, startID, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(newPage(logs, limit, func(l memory.LogEntry) int64 { return l.ID }))
}

// ─── AddDecisionTool ────────────────────────────────────────────────────────

// AddDecisionTool handles the add_decision MCP tool.
type AddDecisionTool struct {
	store *memory.Store
}

// NewAddDecisionTool creates an AddDecisionTool with the given memory store.
func NewAddDecisionTool(store *memory.Store) *AddDecisionTool {
	return &AddDecisionTool{store: store}
}

// Definition returns the MCP tool definition for add_decision.
func (t *AddDecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("add_decision",
		mcp.WithDescription(
			"Record a decision the discussion reached, with its reasoning. "+
				"Call this as soon as something is agreed, and before moving to another topic.",
		),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic the decision settles"),
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("What was decided"),
		),
		mcp.WithString("reason",
			mcp.Required(),
			mcp.Description("Why: the trade-offs and alternatives considered"),
		),
	)
}

// Handle processes the add_decision tool call.
func (t *AddDecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, err := requiredID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.AddDecision(ctx, topicID, req.GetString("decision", ""), req.GetString("reason", "")))
}

// ─── GetDecisionsTool ───────────────────────────────────────────────────────

// GetDecisionsTool handles the get_decisions MCP tool.
type GetDecisionsTool struct {
	store *memory.Store
}

// NewGetDecisionsTool creates a GetDecisionsTool with the given memory store.
func NewGetDecisionsTool(store *memory.Store) *GetDecisionsTool {
	return &GetDecisionsTool{store: store}
}

// Definition returns the MCP tool definition for get_decisions.
func (t *GetDecisionsTool) Definition() mcp.Tool {
	return mcp.NewTool("get_decisions",
		mcp.WithDescription("Page through a topic's decisions, oldest first."),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic to read"),
		),
		mcp.WithNumber("start_id",
			mcp.Description("First decision id to return (inclusive); use the hint of the previous page"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Page size (default and cap: %d)", t.store.Config().MaxDecisions)),
		),
	)
}

// Handle processes the get_decisions tool call.
func (t *GetDecisionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, startID, limit, err := pageArgs(req, t.store.Config().MaxDecisions)
	if err != nil {
		return errorResult(err), nil
	}
	decisions, err := t.store.GetDecisions(ctx, topicID, startID, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(newPage(decisions, limit, func(d memory.Decision) int64 { return d.ID }))
}

func pageArgs(req mcp.CallToolRequest, maxLimit int) (topicID, startID int64, limit int, err error) {
	if topicID, err = requiredID(req, "topic_id"); err != nil {
		return 0, 0, 0, err
	}
	if startID, _, err = idArg(req, "start_id"); err != nil {
		return 0, 0, 0, err
	}
	if startID < 0 {
		return 0, 0, 0, invalid("start_id must not be negative")
	}
	return topicID, startID, memory.ClampLimit(intArg(req, "limit", 0), maxLimit), nil
}

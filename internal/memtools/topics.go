package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── AddTopicTool ───────────────────────────────────────────────────────────

// AddTopicTool handles the add_topic MCP tool.
type AddTopicTool struct {
	store *memory.Store
}

// NewAddTopicTool creates an AddTopicTool with the given memory store.
func NewAddTopicTool(store *memory.Store) *AddTopicTool {
	return &AddTopicTool{store: store}
}

// Definition returns the MCP tool definition for add_topic.
func (t *AddTopicTool) Definition() mcp.Tool {
	return mcp.NewTool("add_topic",
		mcp.WithDescription(
			"Open a discussion topic under a subject, optionally nested under a parent topic of the same subject. "+
				"Titles longer than 200 characters are truncated.",
		),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject that owns the topic"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short, searchable title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What is being discussed and why"),
		),
		mcp.WithNumber("parent_topic_id",
			mcp.Description("Parent topic for nesting; omit for a top-level topic"),
		),
	)
}

// Handle processes the add_topic tool call.
func (t *AddTopicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	parentID, err := optionalID(req, "parent_topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.AddTopic(ctx, memory.AddTopicParams{
		SubjectID:     subjectID,
		ParentTopicID: parentID,
		Title:         req.GetString("title", ""),
		Description:   req.GetString("description", ""),
	}))
}

// ─── GetTopicsTool ──────────────────────────────────────────────────────────

type topicLister func(ctx context.Context, subjectID int64, parentID *int64, limit int) ([]memory.Topic, error)

// GetTopicsTool handles get_topics, get_decided_topics and
// get_undecided_topics, which differ only in their decision filter.
type GetTopicsTool struct {
	store       *memory.Store
	name        string
	description string
	list        topicLister
}

// NewGetTopicsTool lists every topic at one level.
func NewGetTopicsTool(store *memory.Store) *GetTopicsTool {
	return &GetTopicsTool{
		store:       store,
		name:        "get_topics",
		description: "List topics at one level of a subject's topic forest, oldest first.",
		list:        store.GetTopics,
	}
}

// NewGetDecidedTopicsTool lists topics that have at least one decision.
func NewGetDecidedTopicsTool(store *memory.Store) *GetTopicsTool {
	return &GetTopicsTool{
		store:       store,
		name:        "get_decided_topics",
		description: "List topics that already have at least one recorded decision.",
		list:        store.GetDecidedTopics,
	}
}

// NewGetUndecidedTopicsTool lists topics that are still open.
func NewGetUndecidedTopicsTool(store *memory.Store) *GetTopicsTool {
	return &GetTopicsTool{
		store:       store,
		name:        "get_undecided_topics",
		description: "List topics with no decision yet: the open questions of a subject.",
		list:        store.GetUndecidedTopics,
	}
}

// Definition returns the MCP tool definition.
func (t *GetTopicsTool) Definition() mcp.Tool {
	maxTopics := t.store.Config().MaxTopics
	return mcp.NewTool(t.name,
		mcp.WithDescription(t.description),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject to list"),
		),
		mcp.WithNumber("parent_topic_id",
			mcp.Description("List the children of this topic; omit for top-level topics"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum topics to return (default and cap: %d)", maxTopics)),
		),
	)
}

// Handle processes the tool call.
func (t *GetTopicsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	parentID, err := optionalID(req, "parent_topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	limit := memory.ClampLimit(intArg(req, "limit", 0), t.store.Config().MaxTopics)

	topics, err := t.list(ctx, subjectID, parentID, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"topics": topics, "count": len(topics), "limit": limit})
}

// ─── GetTopicTreeTool ───────────────────────────────────────────────────────

// GetTopicTreeTool handles the get_topic_tree MCP tool.
type GetTopicTreeTool struct {
	store *memory.Store
}

// NewGetTopicTreeTool creates a GetTopicTreeTool with the given memory store.
func NewGetTopicTreeTool(store *memory.Store) *GetTopicTreeTool {
	return &GetTopicTreeTool{store: store}
}

// Definition returns the MCP tool definition for get_topic_tree.
func (t *GetTopicTreeTool) Definition() mcp.Tool {
	return mcp.NewTool("get_topic_tree",
		mcp.WithDescription(
			"Return a subject's topics as a nested tree. The walk stops at the node budget and sets truncated; "+
				"fetch again with topic_id set to a returned node to see deeper levels.",
		),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject to walk"),
		),
		mcp.WithNumber("topic_id",
			mcp.Description("Start from this topic instead of the top level"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Node budget (default and cap: %d)", t.store.Config().MaxTreeNodes)),
		),
	)
}

// Handle processes the get_topic_tree tool call.
func (t *GetTopicTreeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	rootID, err := optionalID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.GetTopicTree(ctx, subjectID, rootID, intArg(req, "limit", 0)))
}

// ─── MoveTopicTool ──────────────────────────────────────────────────────────

// MoveTopicTool handles the move_topic MCP tool.
type MoveTopicTool struct {
	store *memory.Store
}

// NewMoveTopicTool creates a MoveTopicTool with the given memory store.
func NewMoveTopicTool(store *memory.Store) *MoveTopicTool {
	return &MoveTopicTool{store: store}
}

// Definition returns the MCP tool definition for move_topic.
func (t *MoveTopicTool) Definition() mcp.Tool {
	return mcp.NewTool("move_topic",
		mcp.WithDescription(
			"Re-parent a topic within its subject. Moving a topic under itself or one of its descendants is rejected.",
		),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic to move"),
		),
		mcp.WithNumber("parent_topic_id",
			mcp.Description("New parent; omit or pass 0 to make it top-level"),
		),
	)
}

// Handle processes the move_topic tool call.
func (t *MoveTopicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, err := requiredID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	parentID, err := optionalID(req, "parent_topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	if parentID != nil && *parentID == 0 {
		parentID = nil
	}
	return respond(t.store.MoveTopic(ctx, topicID, parentID))
}

// ─── UpdateTopicTool ────────────────────────────────────────────────────────

// UpdateTopicTool handles the update_topic MCP tool.
type UpdateTopicTool struct {
	store *memory.Store
}

// NewUpdateTopicTool creates an UpdateTopicTool with the given memory store.
func NewUpdateTopicTool(store *memory.Store) *UpdateTopicTool {
	return &UpdateTopicTool{store: store}
}

// Definition returns the MCP tool definition for update_topic.
func (t *UpdateTopicTool) Definition() mcp.Tool {
	return mcp.NewTool("update_topic",
		mcp.WithDescription("Change a topic's title and/or description. Only provided fields are changed."),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic to update"),
		),
		mcp.WithString("title",
			mcp.Description("New title"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
	)
}

// Handle processes the update_topic tool call.
func (t *UpdateTopicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, err := requiredID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.UpdateTopic(ctx, topicID, memory.UpdateTopicParams{
		Title:       optionalString(req, "title"),
		Description: optionalString(req, "description"),
	}))
}

// ─── DeleteTopicTool ────────────────────────────────────────────────────────

// DeleteTopicTool handles the delete_topic MCP tool.
type DeleteTopicTool struct {
	store *memory.Store
}

// NewDeleteTopicTool creates a DeleteTopicTool with the given memory store.
func NewDeleteTopicTool(store *memory.Store) *DeleteTopicTool {
	return &DeleteTopicTool{store: store}
}

// Definition returns the MCP tool definition for delete_topic.
func (t *DeleteTopicTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_topic",
		mcp.WithDescription(
			"Delete a topic with its child topics, logs and decisions. Linked tasks are kept and unlinked.",
		),
		mcp.WithNumber("topic_id",
			mcp.Required(),
			mcp.Description("Topic to delete"),
		),
	)
}

// Handle processes the delete_topic tool call.
func (t *DeleteTopicTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topicID, err := requiredID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	if err := t.store.DeleteTopic(ctx, topicID); err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"deleted": true, "topic_id": topicID})
}

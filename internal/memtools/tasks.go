package memtools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// ─── AddTaskTool ────────────────────────────────────────────────────────────

// AddTaskTool handles the add_task MCP tool.
type AddTaskTool struct {
	store *memory.Store
}

// NewAddTaskTool creates an AddTaskTool with the given memory store.
func NewAddTaskTool(store *memory.Store) *AddTaskTool {
	return &AddTaskTool{store: store}
}

// Definition returns the MCP tool definition for add_task.
func (t *AddTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("add_task",
		mcp.WithDescription(
			"Create a pending task under a subject, optionally linked to a topic of the same subject.",
		),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject that owns the task"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short task title"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What needs to be done"),
		),
		mcp.WithNumber("topic_id",
			mcp.Description("Topic the task came out of"),
		),
	)
}

// Handle processes the add_task tool call.
func (t *AddTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	topicID, err := optionalID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	return respond(t.store.AddTask(ctx, memory.AddTaskParams{
		SubjectID:   subjectID,
		TopicID:     topicID,
		Title:       req.GetString("title", ""),
		Description: req.GetString("description", ""),
	}))
}

// ─── GetTasksTool ───────────────────────────────────────────────────────────

// GetTasksTool handles the get_tasks MCP tool.
type GetTasksTool struct {
	store *memory.Store
}

// NewGetTasksTool creates a GetTasksTool with the given memory store.
func NewGetTasksTool(store *memory.Store) *GetTasksTool {
	return &GetTasksTool{store: store}
}

// Definition returns the MCP tool definition for get_tasks.
func (t *GetTasksTool) Definition() mcp.Tool {
	return mcp.NewTool("get_tasks",
		mcp.WithDescription("List a subject's tasks, optionally filtered by status."),
		mcp.WithNumber("subject_id",
			mcp.Required(),
			mcp.Description("Subject to list"),
		),
		mcp.WithString("status",
			mcp.Description("Only tasks in this status"),
			mcp.Enum(memory.TaskStatusValues()...),
		),
	)
}

// Handle processes the get_tasks tool call.
func (t *GetTasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := requiredID(req, "subject_id")
	if err != nil {
		return errorResult(err), nil
	}
	tasks, err := t.store.GetTasks(ctx, subjectID, req.GetString("status", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"tasks": tasks, "count": len(tasks)})
}

// ─── UpdateTaskTool ─────────────────────────────────────────────────────────

// UpdateTaskTool handles the update_task MCP tool.
type UpdateTaskTool struct {
	store *memory.Store
}

// NewUpdateTaskTool creates an UpdateTaskTool with the given memory store.
func NewUpdateTaskTool(store *memory.Store) *UpdateTaskTool {
	return &UpdateTaskTool{store: store}
}

// Definition returns the MCP tool definition for update_task.
func (t *UpdateTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("update_task",
		mcp.WithDescription("Update a task. Only provided fields are changed; topic_id=0 unlinks the task."),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("Task to update"),
		),
		mcp.WithString("status",
			mcp.Description("New status"),
			mcp.Enum(memory.TaskStatusValues()...),
		),
		mcp.WithString("title",
			mcp.Description("New title"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
		mcp.WithNumber("topic_id",
			mcp.Description("Link to this topic; 0 removes the link"),
		),
	)
}

// Handle processes the update_task tool call.
func (t *UpdateTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := requiredID(req, "task_id")
	if err != nil {
		return errorResult(err), nil
	}
	var p memory.UpdateTaskParams
	if s := optionalString(req, "status"); s != nil {
		st, err := memory.ParseTaskStatus(strings.TrimSpace(*s))
		if err != nil {
			return errorResult(err), nil
		}
		p.Status = &st
	}
	p.Title = optionalString(req, "title")
	p.Description = optionalString(req, "description")

	topicID, err := optionalID(req, "topic_id")
	if err != nil {
		return errorResult(err), nil
	}
	if topicID != nil && *topicID == 0 {
		p.UnlinkTopic = true
	} else {
		p.TopicID = topicID
	}
	return respond(t.store.UpdateTask(ctx, taskID, p))
}

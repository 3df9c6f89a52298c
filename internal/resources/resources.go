// Package resources implements MCP resource handlers for the discussion memory.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (memory://...) following MCP conventions.
package resources

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/workflow"
)

// Resource URIs.
const (
	WorkflowURI = "memory://workflow"
	SubjectsURI = "memory://subjects"
	ActiveURI   = "memory://active"
)

// Handler serves the memory resources.
type Handler struct {
	store      *memory.Store
	activeDays int
}

// NewHandler creates a resource Handler. activeDays bounds memory://active;
// zero means the store default.
func NewHandler(store *memory.Store, activeDays int) *Handler {
	return &Handler{store: store, activeDays: activeDays}
}

// WorkflowResource describes the recording protocol the hooks enforce.
func (h *Handler) WorkflowResource() mcp.Resource {
	return mcp.NewResource(
		WorkflowURI,
		"Discussion Workflow",
		mcp.WithResourceDescription("How to tag responses and when to record logs and decisions"),
		mcp.WithMIMEType("text/markdown"),
	)
}

// HandleWorkflow returns the workflow guide.
func (h *Handler) HandleWorkflow(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     WorkflowGuide(),
		},
	}, nil
}

// SubjectsResource lists every subject.
func (h *Handler) SubjectsResource() mcp.Resource {
	return mcp.NewResource(
		SubjectsURI,
		"Subjects",
		mcp.WithResourceDescription("All subjects with their ids"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSubjects returns the subjects as JSON.
func (h *Handler) HandleSubjects(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	subjects, err := h.store.ListSubjects(ctx)
	if err != nil {
		return errorResource(req.Params.URI, memory.MessageOf(err)), nil
	}
	return jsonContents(req.Params.URI, map[string]any{"subjects": subjects})
}

// ActiveResource summarizes recently active subjects.
func (h *Handler) ActiveResource() mcp.Resource {
	return mcp.NewResource(
		ActiveURI,
		"Active Discussions",
		mcp.WithResourceDescription("Subjects with recent topics and their in-progress tasks"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleActive returns the active context as JSON.
func (h *Handler) HandleActive(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	active, err := h.store.ActiveContext(ctx, memory.ActiveContextOptions{Days: h.activeDays})
	if err != nil {
		return errorResource(req.Params.URI, memory.MessageOf(err)), nil
	}
	return jsonContents(req.Params.URI, map[string]any{"subjects": active})
}

// WorkflowGuide is the recording protocol in markdown. The server
// instructions and the workflow resource share it.
func WorkflowGuide() string {
	return fmt.Sprintf(`# Discussion memory workflow

Discussions are stored as subjects, each owning a tree of topics.
Topics collect logs (what was said) and decisions (what was agreed, and why).
Tasks are tracked per subject and may link to a topic.

## Meta tag

End every response with exactly one line:

    %s

The stop hook reads the last tag of your last response. A missing tag, or a
topic id that does not exist, blocks the response until it is fixed.

## Recording

- Record a decision with add_decision as soon as something is agreed.
- Before the tag moves to a different topic, the previous topic must have a
  decision since it became current, or an add_decision/add_log call for it.
- Open new threads with add_topic; nest them with parent_topic_id.
- Search with search (at least %d characters) and read rows with get_by_id.

## Limits

get_topics returns at most 10 topics, get_logs and get_decisions page by 30
(pass start_id from the hint to continue), get_topic_tree stops at 100 nodes
and search returns at most 50 hits.
`, workflow.MetaTagFormat, memory.MinKeywordLength)
}

// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it opens the memory store and injects it
// into the tools, prompts and resources. No business logic lives here.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/discussion-memory/internal/config"
	"github.com/HendryAvila/discussion-memory/internal/logging"
	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/memtools"
	"github.com/HendryAvila/discussion-memory/internal/prompts"
	"github.com/HendryAvila/discussion-memory/internal/resources"
	"github.com/HendryAvila/discussion-memory/internal/workflow"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function closes the memory store's database
// connection and must be called on shutdown (typically via defer).
// It is always non-nil.
func New(cfg config.Config, logger *logging.Logger) (*server.MCPServer, func(), error) {
	if logger == nil {
		logger = logging.Nop()
	}

	store, err := memory.New(cfg.MemoryConfig(logger))
	if err != nil {
		return nil, noop, fmt.Errorf("opening memory store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("memory store close failed", "error", err)
		}
	}

	s := server.NewMCPServer(
		"discussion-memory",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register memory tools ---

	tools := memtools.All(store)
	for _, tool := range tools {
		s.AddTool(tool.Definition(), tool.Handle)
	}

	// --- Register prompts ---

	resumePrompt := prompts.NewResumePrompt()
	s.AddPrompt(resumePrompt.Definition(), resumePrompt.Handle)

	wrapUpPrompt := prompts.NewWrapUpPrompt()
	s.AddPrompt(wrapUpPrompt.Definition(), wrapUpPrompt.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(store, cfg.Workflow.ActiveDays)
	s.AddResource(rh.WorkflowResource(), rh.HandleWorkflow)
	s.AddResource(rh.SubjectsResource(), rh.HandleSubjects)
	s.AddResource(rh.ActiveResource(), rh.HandleActive)

	logger.Info("mcp server ready", "db", store.Config().Path(), "tools", len(tools))
	return s, cleanup, nil
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the discussion memory.
func serverInstructions() string {
	return `You have access to a persistent discussion memory.

Discussions are organized as subjects (usually one per project), each with a
tree of topics. Topics hold logs and decisions; subjects also own tasks.

## Every response

End every response with one meta tag naming the subject and topic you are
discussing:

` + workflow.MetaTagFormat + `

Hooks check this tag after each response. A missing tag or an unknown topic
id blocks the response until you fix it. Look ids up with list_subjects,
get_topics or search; create what is missing with add_subject / add_topic.

## Recording

- When something is agreed, call add_decision with the decision and the reason.
- Before your tag moves to a different topic, make sure the previous topic has
  a decision or a log (add_log) recorded. Switching without recording is blocked.
- Track follow-up work with add_task and update_task.

Read memory://workflow for the full protocol and the listing limits.`
}

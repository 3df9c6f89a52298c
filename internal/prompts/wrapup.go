package prompts

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// WrapUpPrompt handles the memory-wrapup MCP prompt.
// It instructs the AI to record everything the session concluded.
type WrapUpPrompt struct{}

// NewWrapUpPrompt creates a WrapUpPrompt.
func NewWrapUpPrompt() *WrapUpPrompt {
	return &WrapUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WrapUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-wrapup",
		mcp.WithPromptDescription(
			"Wrap up the session: record agreed decisions, log open threads and update task status.",
		),
		mcp.WithArgument("topic_id",
			mcp.ArgumentDescription("Topic to focus on. Defaults to the topic in the last meta tag."),
		),
	)
}

// Handle processes the memory-wrapup prompt request.
func (p *WrapUpPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	focus := "the current topic (from your last meta tag)"
	if id := strings.TrimSpace(req.Params.Arguments["topic_id"]); id != "" {
		focus = "topic " + id
	}

	return &mcp.GetPromptResult{
		Description: "Wrap up discussion",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"We're stopping here. Before we do, for " + focus + " and any other topic we touched:\n\n" +
						"1. Record each agreement with `add_decision`, including the reason\n" +
						"2. Summarize unresolved threads with `add_log`\n" +
						"3. Create tasks for agreed follow-ups with `add_task`, and update finished ones with `update_task`\n" +
						"4. List what you recorded, with ids",
				),
			},
		},
	}, nil
}

// Package prompts implements MCP prompt handlers for the discussion memory.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ResumePrompt handles the memory-resume MCP prompt.
// It guides the AI to reload where a subject's discussion left off.
type ResumePrompt struct{}

// NewResumePrompt creates a ResumePrompt.
func NewResumePrompt() *ResumePrompt {
	return &ResumePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ResumePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("memory-resume",
		mcp.WithPromptDescription(
			"Resume a discussion: reload open topics, recent decisions and in-progress tasks of a subject.",
		),
		mcp.WithArgument("subject_id",
			mcp.ArgumentDescription("Subject to resume. Omit to pick from list_subjects."),
		),
	)
}

// Handle processes the memory-resume prompt request.
func (p *ResumePrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	subject := strings.TrimSpace(req.Params.Arguments["subject_id"])

	var steps string
	if _, err := strconv.ParseInt(subject, 10, 64); err == nil {
		steps = fmt.Sprintf(
			"1. Run `get_undecided_topics` with subject_id=%[1]s to see what is still open\n"+
				"2. Run `get_decided_topics` with subject_id=%[1]s and read the latest decisions with `get_decisions`\n"+
				"3. Run `get_tasks` with subject_id=%[1]s and status=in_progress\n",
			subject)
	} else {
		steps = "1. Run `list_subjects` and ask me which subject to resume\n" +
			"2. For that subject, run `get_undecided_topics` and `get_decided_topics`\n" +
			"3. Run `get_tasks` with status=in_progress\n"
	}

	return &mcp.GetPromptResult{
		Description: "Resume discussion",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Let's pick up where we left off.\n\n" +
						"Please:\n" + steps +
						"4. Summarize the open questions and the decisions they depend on\n" +
						"5. Ask me which topic to continue, and tag your answer with that topic",
				),
			},
		},
	}, nil
}

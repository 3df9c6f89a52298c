package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/transcript"
)

// RecordRequest identifies the turn whose relay should be logged.
type RecordRequest struct {
	SessionID      string
	TranscriptPath string
	TopicID        int64
	// RunID correlates the recorder's log lines with the Stop run that
	// spawned it.
	RunID string
}

// Spawner starts the log recorder without waiting for it.
type Spawner interface {
	Spawn(req RecordRequest) error
}

// CommandSpawner re-executes the current binary as
// "<Path> hook record-log --session ... --transcript ... --topic ...".
type CommandSpawner struct {
	Path  string
	Args  []string
	RunID string
}

// NewCommandSpawner spawns the running executable.
func NewCommandSpawner(runID string, extraArgs ...string) (*CommandSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &CommandSpawner{Path: exe, Args: extraArgs, RunID: runID}, nil
}

// Spawn starts the recorder detached. There is no ordering guarantee
// between recorders and no retry.
func (c *CommandSpawner) Spawn(req RecordRequest) error {
	args := append([]string{}, c.Args...)
	args = append(args, "hook", "record-log",
		"--session", req.SessionID,
		"--transcript", req.TranscriptPath,
		"--topic", strconv.FormatInt(req.TopicID, 10),
	)
	if c.RunID != "" {
		args = append(args, "--parent-run", c.RunID)
	}
	cmd := exec.Command(c.Path, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	return cmd.Process.Release()
}

// Summarizer condenses a formatted relay into a log entry.
type Summarizer interface {
	Summarize(ctx context.Context, relay string) (string, error)
}

// TruncateSummarizer keeps the first Max runes of the relay.
type TruncateSummarizer struct {
	Max int
}

func (t TruncateSummarizer) Summarize(_ context.Context, relay string) (string, error) {
	return memory.Truncate(relay, t.Max), nil
}

// CommandSummarizer writes a summary prompt followed by the relay to the
// stdin of an external command, for example a small model CLI, and reads
// the summary from its stdout. It falls back to truncation when it fails.
type CommandSummarizer struct {
	Command  []string
	Timeout  time.Duration
	Fallback TruncateSummarizer
}

const summaryPrompt = "Summarize the following exchange in one or two sentences, " +
	"in the form \"User: asked/requested X -> Assistant: answered/did Y\".\n\n"

func (c CommandSummarizer) Summarize(ctx context.Context, relay string) (string, error) {
	if len(c.Command) == 0 {
		return c.Fallback.Summarize(ctx, relay)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Command[0], c.Command[1:]...)
	cmd.Stdin = strings.NewReader(summaryPrompt + relay)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		s, _ := c.Fallback.Summarize(ctx, relay)
		return s, fmt.Errorf("summary command: %w", err)
	}
	summary := strings.TrimSpace(out.String())
	if summary == "" {
		return c.Fallback.Summarize(ctx, relay)
	}
	return summary, nil
}

// RecordLog summarizes the last relay of the transcript and appends it to
// the topic's discussion log.
func (e *Engine) RecordLog(ctx context.Context, req RecordRequest) (*memory.LogEntry, error) {
	log := e.log.With("hook", "record-log", "session", req.SessionID, "topic_id", req.TopicID)
	if req.TopicID <= 0 {
		return nil, errors.New("record-log: topic id is required")
	}

	turns, err := transcript.Read(req.TranscriptPath)
	if err != nil {
		return nil, err
	}
	relay := transcript.LastRelay(turns)
	if len(relay) == 0 {
		return nil, errors.New("record-log: no relay found")
	}
	text := transcript.FormatRelay(relay, 500, 1000)
	if text == "" {
		return nil, errors.New("record-log: empty relay")
	}

	summary, err := e.summary.Summarize(ctx, text)
	if err != nil {
		log.Warn("summarizer failed, storing fallback", "error", err)
	}
	if strings.TrimSpace(summary) == "" {
		summary = memory.Truncate(text, e.cfg.LogMaxChars)
	}

	entry, err := e.store.AddLog(ctx, req.TopicID, summary)
	if err != nil {
		return nil, err
	}
	log.Info("relay recorded", "log_id", entry.ID, "chars", len(summary))
	return entry, nil
}

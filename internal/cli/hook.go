package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/discussion-memory/internal/config"
	"github.com/HendryAvila/discussion-memory/internal/logging"
	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/workflow"
)

// newSpawner builds the background recorder launcher for one hook run.
var newSpawner = func(runID string) (workflow.Spawner, error) {
	return workflow.NewCommandSpawner(runID)
}

// recordTimeout bounds a detached record-log run, summarizer included.
const recordTimeout = 2 * time.Minute

// HookCmd returns the hook command - parent for Claude Code hook handlers
func HookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook <event>",
		Short: "Handle Claude Code hook events",
		Long: `Process Claude Code hook events.

Each event reads its JSON payload from stdin and writes a JSON response to
stdout. Hooks never fail the host: on any internal error they approve and
explain why in the reason.

Available events:
  stop            - validate the meta tag and topic switches
  nudge           - arm a reminder when nothing was recorded lately
  prompt-submit   - deliver an armed reminder once
  session-start   - reset the session and inject active discussions

Example:
  echo '{"session_id":"abc","transcript_path":"/tmp/t.jsonl"}' | dmem hook stop`,
	}

	cmd.AddCommand(hookStopCmd())
	cmd.AddCommand(hookNudgeCmd())
	cmd.AddCommand(hookPromptSubmitCmd())
	cmd.AddCommand(hookSessionStartCmd())
	cmd.AddCommand(hookRecordLogCmd())

	return cmd
}

// hookRun holds what one hook invocation needs.
type hookRun struct {
	log    *logging.Logger
	engine *workflow.Engine
}

// openHook loads config, opens the log file and the store. The returned
// close func is always non-nil. A nil hookRun comes with a non-nil error.
func openHook(name, runID string) (*hookRun, func(), error) {
	cfg, cfgErr := config.Load()
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger, err := logging.New(cfg.HookLogOptions())
	if err != nil {
		logger = logging.Nop()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	log := logger.With("hook", name, "run", runID)
	if cfgErr != nil {
		log.Warn("config load failed, using defaults", "error", cfgErr)
	}

	store, err := memory.New(cfg.MemoryConfig(log))
	if err != nil {
		log.Error("open store failed", "error", err)
		logger.Sync()
		return nil, func() {}, err
	}

	opts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithSummarizer(cfg.Summarizer()),
	}
	if sp, err := newSpawner(runID); err != nil {
		log.Warn("record-log spawner unavailable", "error", err)
	} else {
		opts = append(opts, workflow.WithSpawner(sp))
	}

	run := &hookRun{
		log:    log,
		engine: workflow.New(store, workflow.NewFileStateStore(cfg.StatePath()), cfg.WorkflowConfig(), opts...),
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			log.Warn("store close failed", "error", err)
		}
		logger.Sync()
	}
	return run, closeFn, nil
}

// readEvent decodes the stdin payload. An empty payload yields a zero Event.
func readEvent(in io.Reader) (workflow.Event, error) {
	var ev workflow.Event
	data, err := io.ReadAll(in)
	if err != nil {
		return ev, err
	}
	if len(data) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("invalid JSON: %w", err)
	}
	return ev, nil
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func skipped(what string, err error) workflow.StopResponse {
	return workflow.StopResponse{
		Decision: workflow.Approve,
		Reason:   fmt.Sprintf("memory hook skipped (%s failed: %v)", what, err),
	}
}

// stopLike runs a hook whose answer is a decision.
func stopLike(cmd *cobra.Command, name string, handle func(*workflow.Engine, context.Context, workflow.Event) workflow.StopResponse) error {
	out := cmd.OutOrStdout()
	ev, err := readEvent(cmd.InOrStdin())
	if err != nil {
		return writeJSON(out, skipped("read hook input", err))
	}

	run, closeFn, err := openHook(name, "")
	defer closeFn()
	if err != nil {
		return writeJSON(out, skipped("open memory store", err))
	}
	return writeJSON(out, handle(run.engine, cmd.Context(), ev))
}

// contextLike runs a hook whose answer is additional context.
func contextLike(cmd *cobra.Command, name string, handle func(*workflow.Engine, context.Context, workflow.Event) workflow.ContextResponse) error {
	out := cmd.OutOrStdout()
	ev, err := readEvent(cmd.InOrStdin())
	if err != nil {
		return writeJSON(out, workflow.ContextResponse{})
	}

	run, closeFn, err := openHook(name, "")
	defer closeFn()
	if err != nil {
		return writeJSON(out, workflow.ContextResponse{})
	}
	return writeJSON(out, handle(run.engine, cmd.Context(), ev))
}

func hookStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Handle Stop event",
		Long:  "Called when the assistant wants to end its turn. Blocks on a missing or unknown meta tag and on unrecorded topic switches.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopLike(cmd, "stop", (*workflow.Engine).Stop)
		},
	}
}

func hookNudgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nudge",
		Short: "Handle Stop event (recording nudge)",
		Long:  "Always approves. Every few turns, arms a reminder if no decision or topic was recorded recently.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return stopLike(cmd, "nudge", (*workflow.Engine).Nudge)
		},
	}
}

func hookPromptSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt-submit",
		Short: "Handle UserPromptSubmit event",
		Long:  "Injects an armed recording reminder into the next prompt, once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return contextLike(cmd, "prompt-submit", (*workflow.Engine).PromptSubmit)
		},
	}
}

func hookSessionStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "Handle SessionStart event",
		Long:  "Forgets the previous topic of the session and injects recently active subjects.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return contextLike(cmd, "session-start", (*workflow.Engine).SessionStart)
		},
	}
}

func hookRecordLogCmd() *cobra.Command {
	var req workflow.RecordRequest
	cmd := &cobra.Command{
		Use:    "record-log",
		Short:  "Summarize the last exchange into a topic log (spawned by stop)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, closeFn, err := openHook("record-log", req.RunID)
			defer closeFn()
			if err != nil {
				return nil //nolint:nilerr // detached: nobody reads the exit status
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), recordTimeout)
			defer cancel()
			if _, err := run.engine.RecordLog(ctx, req); err != nil {
				run.log.Warn("record-log failed", "session", req.SessionID, "topic_id", req.TopicID, "error", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.SessionID, "session", "", "session id")
	cmd.Flags().StringVar(&req.TranscriptPath, "transcript", "", "transcript path")
	cmd.Flags().Int64Var(&req.TopicID, "topic", 0, "topic id")
	cmd.Flags().StringVar(&req.RunID, "parent-run", "", "run id of the spawning stop hook")
	_ = cmd.MarkFlagRequired("transcript")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// Package workflow implements the session hooks that keep an assistant
// recording its discussions.
//
// Every response must end with a meta tag naming the subject and topic it
// belongs to. At each turn boundary the Stop hook checks the tag, and when
// the topic changes it requires that the topic being left was recorded
// (a decision or a log) before the switch is approved.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/discussion-memory/internal/logging"
	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/transcript"
)

// Store is the part of the memory store the hooks read and write.
type Store interface {
	TopicExists(ctx context.Context, id int64) (bool, error)
	HasDecisionSince(ctx context.Context, topicID int64, since time.Time) (bool, error)
	ActiveContext(ctx context.Context, opts memory.ActiveContextOptions) ([]memory.ActiveSubject, error)
	AddLog(ctx context.Context, topicID int64, content string) (*memory.LogEntry, error)
}

// Config tunes the hook behaviour.
type Config struct {
	BootstrapTopicID int64
	ReminderEvery    int
	NudgeEvery       int
	NudgeWindow      int
	TagRetries       int
	TagRetryDelay    time.Duration
	RecordLogs       bool
	LogMaxChars      int
	ActiveDays       int
}

// DefaultConfig returns the stock hook settings.
func DefaultConfig() Config {
	return Config{
		BootstrapTopicID: 1,
		ReminderEvery:    10,
		NudgeEvery:       5,
		NudgeWindow:      3,
		TagRetries:       3,
		TagRetryDelay:    300 * time.Millisecond,
		RecordLogs:       true,
		LogMaxChars:      500,
		ActiveDays:       7,
	}
}

// Event is the JSON payload a hook receives on stdin.
type Event struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd,omitempty"`
	HookEventName  string `json:"hook_event_name,omitempty"`
	StopHookActive bool   `json:"stop_hook_active,omitempty"`
	// Source is startup, resume, clear or compact for SessionStart.
	Source string `json:"source,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Decision is the verdict of a Stop hook.
type Decision string

const (
	Approve Decision = "approve"
	Block   Decision = "block"
)

// StopResponse is written to stdout by the Stop and nudge hooks.
type StopResponse struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// ContextResponse is written to stdout by the prompt and session hooks.
type ContextResponse struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// Tools whose calls count as recording a topic.
var (
	recordingTools = []string{"add_decision", "add_log"}
	nudgeTools     = []string{"add_decision", "add_topic"}
)

// Engine evaluates hook events.
type Engine struct {
	store   Store
	state   StateStore
	cfg     Config
	log     *logging.Logger
	now     func() time.Time
	sleep   func(time.Duration)
	spawner Spawner
	summary Summarizer
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(e *Engine) { e.log = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithSleep replaces time.Sleep between tag retries.
func WithSleep(sleep func(time.Duration)) Option { return func(e *Engine) { e.sleep = sleep } }

// WithSpawner sets how the background log recorder is started.
func WithSpawner(s Spawner) Option { return func(e *Engine) { e.spawner = s } }

// WithSummarizer sets how relays are condensed before they are logged.
func WithSummarizer(s Summarizer) Option { return func(e *Engine) { e.summary = s } }

// New creates an Engine.
func New(store Store, state StateStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		state: state,
		cfg:   cfg,
		log:   logging.Nop(),
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.summary == nil {
		e.summary = TruncateSummarizer{Max: cfg.LogMaxChars}
	}
	return e
}

func (e *Engine) session(id string) session {
	return session{store: e.state, id: id}
}

// ─── Stop ────────────────────────────────────────────────────────────────────

// Stop decides whether the assistant may end its turn. stop_hook_active is
// ignored: a re-entered Stop is validated like any other.
func (e *Engine) Stop(ctx context.Context, ev Event) (resp StopResponse) {
	defer e.recoverStop("stop", &resp)
	log := e.log.With("hook", "stop", "session", ev.SessionID)

	turns, tag, found, err := e.readTag(ev.TranscriptPath)
	if err != nil {
		return e.degraded(log, "read transcript", err)
	}
	if !found {
		log.Info("blocked", "cause", "missing meta tag")
		return StopResponse{Decision: Block, Reason: missingTagReason()}
	}

	exists, err := e.store.TopicExists(ctx, tag.TopicID)
	if err != nil {
		return e.degraded(log, "topic lookup", err)
	}
	if !exists {
		log.Info("blocked", "cause", "unknown topic", "topic_id", tag.TopicID)
		return StopResponse{Decision: Block, Reason: unknownTopicReason(tag)}
	}

	sess := e.session(ev.SessionID)
	prev, hasPrev, err := sess.previousTopic()
	if err != nil {
		return e.degraded(log, "read session state", err)
	}
	switched := hasPrev && prev != tag.TopicID

	if switched && prev != e.cfg.BootstrapTopicID {
		recorded, err := e.topicRecorded(ctx, sess, prev, turns)
		if err != nil {
			return e.degraded(log, "check previous topic", err)
		}
		if !recorded {
			log.Info("blocked", "cause", "unrecorded topic switch", "from", prev, "to", tag.TopicID)
			return StopResponse{Decision: Block, Reason: unrecordedSwitchReason(prev, tag.TopicID)}
		}
	}

	if !hasPrev || switched {
		if err := sess.setPreviousTopic(tag.TopicID, e.now()); err != nil {
			return e.degraded(log, "write session state", err)
		}
	}
	turn, err := sess.increment(SlotTurnCounter)
	if err != nil {
		return e.degraded(log, "write turn counter", err)
	}

	resp = StopResponse{Decision: Approve}
	if e.cfg.ReminderEvery > 0 && turn%e.cfg.ReminderEvery == 0 {
		resp.Reason = consolidationReminder(turn)
	}

	if e.cfg.RecordLogs && e.spawner != nil {
		req := RecordRequest{SessionID: ev.SessionID, TranscriptPath: ev.TranscriptPath, TopicID: tag.TopicID}
		if err := e.spawner.Spawn(req); err != nil {
			log.Warn("record-log spawn failed", "error", err)
		}
	}
	log.Info("approved", "topic_id", tag.TopicID, "switched", switched, "turn", turn)
	return resp
}

// readTag parses the meta tag of the last assistant turn, re-reading the
// transcript while the writer may still be flushing it. The error is set
// only when the last attempt could not read the transcript at all.
func (e *Engine) readTag(path string) ([]transcript.Turn, MetaTag, bool, error) {
	attempts := e.cfg.TagRetries
	if attempts < 1 {
		attempts = 1
	}
	var (
		turns []transcript.Turn
		err   error
	)
	for i := 0; i < attempts; i++ {
		if i > 0 {
			e.sleep(e.cfg.TagRetryDelay)
		}
		turns, err = transcript.Read(path)
		if err != nil {
			continue
		}
		if last, ok := transcript.LastAssistant(turns); ok {
			if tag, ok := ParseMetaTag(last.Text); ok {
				return turns, tag, true, nil
			}
		}
	}
	return turns, MetaTag{}, false, err
}

// topicRecorded reports whether prev got a decision since it became current,
// or an add_decision/add_log call anywhere in the transcript. A topic that no
// longer exists needs no recording.
func (e *Engine) topicRecorded(ctx context.Context, sess session, prev int64, turns []transcript.Turn) (bool, error) {
	exists, err := e.store.TopicExists(ctx, prev)
	if err != nil {
		return false, err
	}
	if !exists {
		return true, nil
	}
	since, err := sess.previousSince()
	if err != nil {
		return false, err
	}
	ok, err := e.store.HasDecisionSince(ctx, prev, since)
	if err != nil || ok {
		return ok, err
	}
	return transcript.HasCall(turns, recordingTools, func(c transcript.ToolCall) bool {
		id, ok := c.IntArg("topic_id")
		return ok && id == prev
	}), nil
}

// ─── Nudge ───────────────────────────────────────────────────────────────────

// Nudge counts turns and, every NudgeEvery turns, arms a reminder for the
// next prompt when nothing was recorded in the last NudgeWindow responses.
// It never blocks.
func (e *Engine) Nudge(ctx context.Context, ev Event) (resp StopResponse) {
	defer e.recoverStop("nudge", &resp)
	log := e.log.With("hook", "nudge", "session", ev.SessionID)
	resp = StopResponse{Decision: Approve}
	if e.cfg.NudgeEvery <= 0 {
		return resp
	}

	sess := e.session(ev.SessionID)
	n, err := sess.increment(SlotNudgeCounter)
	if err != nil {
		return e.degraded(log, "write nudge counter", err)
	}
	if n%e.cfg.NudgeEvery != 0 {
		return resp
	}

	turns, err := transcript.Read(ev.TranscriptPath)
	if err != nil {
		return e.degraded(log, "read transcript", err)
	}
	recent := transcript.AssistantTurns(turns, e.cfg.NudgeWindow)
	if transcript.HasCall(recent, nudgeTools, nil) {
		if err := sess.setCounter(SlotNudgeCounter, 0); err != nil {
			return e.degraded(log, "reset nudge counter", err)
		}
		return resp
	}
	if err := e.state.Set(ev.SessionID, SlotNudgePending, "1"); err != nil {
		return e.degraded(log, "arm nudge", err)
	}
	log.Info("nudge armed", "turns", n)
	return resp
}

// ─── PromptSubmit ────────────────────────────────────────────────────────────

// PromptSubmit delivers an armed nudge exactly once.
func (e *Engine) PromptSubmit(ctx context.Context, ev Event) (resp ContextResponse) {
	defer e.recoverContext("prompt-submit", &resp)
	_, ok, err := e.state.Consume(ev.SessionID, SlotNudgePending)
	if err != nil {
		e.log.Warn("consume nudge failed", "session", ev.SessionID, "error", err)
		return ContextResponse{}
	}
	if !ok {
		return ContextResponse{}
	}
	return ContextResponse{AdditionalContext: nudgeReminder()}
}

// ─── SessionStart ────────────────────────────────────────────────────────────

// SessionStart forgets the previous topic, so the first tagged turn of a
// new or resumed session never counts as a switch, and returns a summary of
// recently active subjects.
func (e *Engine) SessionStart(ctx context.Context, ev Event) (resp ContextResponse) {
	defer e.recoverContext("session-start", &resp)
	log := e.log.With("hook", "session-start", "session", ev.SessionID, "source", ev.Source)

	if err := e.session(ev.SessionID).clearPreviousTopic(); err != nil {
		log.Warn("clear previous topic failed", "error", err)
	}

	active, err := e.store.ActiveContext(ctx, memory.ActiveContextOptions{Days: e.cfg.ActiveDays})
	if err != nil {
		log.Warn("load active context failed", "error", err)
		return ContextResponse{AdditionalContext: protocolReminder()}
	}
	return ContextResponse{AdditionalContext: formatActiveContext(active, e.cfg.ActiveDays)}
}

// ─── Failure handling ────────────────────────────────────────────────────────

func (e *Engine) degraded(log *logging.Logger, op string, err error) StopResponse {
	log.Error("hook degraded to approve", "op", op, "error", err)
	return StopResponse{Decision: Approve, Reason: fmt.Sprintf("memory hook skipped (%s failed: %v)", op, err)}
}

func (e *Engine) recoverStop(hook string, resp *StopResponse) {
	if r := recover(); r != nil {
		e.log.Error("hook panic", "hook", hook, "panic", r)
		*resp = StopResponse{Decision: Approve, Reason: fmt.Sprintf("memory hook skipped (internal error: %v)", r)}
	}
}

func (e *Engine) recoverContext(hook string, resp *ContextResponse) {
	if r := recover(); r != nil {
		e.log.Error("hook panic", "hook", hook, "panic", r)
		*resp = ContextResponse{}
	}
}

// ─── Messages ────────────────────────────────────────────────────────────────

func missingTagReason() string {
	return "Your response has no meta tag. End every response with:\n" +
		MetaTagFormat + "\n" +
		"Use get_topics or search to find the topic, or add_topic to create one, then repeat the final line with the tag."
}

func unknownTopicReason(tag MetaTag) string {
	return fmt.Sprintf("The meta tag names topic %d, which does not exist. "+
		"Check the id with get_topics (subject_id: %d) or create the topic with add_topic, then re-emit the tag.",
		tag.TopicID, tag.SubjectID)
}

func unrecordedSwitchReason(prev, next int64) string {
	return fmt.Sprintf("You are moving from topic %d to topic %d, but nothing was recorded for topic %d. "+
		"Record what was concluded with add_decision (topic_id: %d), or note the discussion with add_log, "+
		"before switching topics.", prev, next, prev, prev)
}

func consolidationReminder(turn int) string {
	return fmt.Sprintf("%d turns in this session. If agreements were reached that are not recorded yet, "+
		"save them with add_decision; split off new threads with add_topic.", turn)
}

func nudgeReminder() string {
	return "Reminder: no decisions or topics were recorded in the last few responses. " +
		"If something was agreed, record it with add_decision. If the discussion moved on, create a topic with add_topic."
}

func protocolReminder() string {
	return "Discussion memory is active. End every response with " + MetaTagFormat
}

func formatActiveContext(active []memory.ActiveSubject, days int) string {
	var b strings.Builder
	b.WriteString(protocolReminder())
	if len(active) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\n\nSubjects active in the last %d days:\n", days)
	for _, s := range active {
		fmt.Fprintf(&b, "- %s (id: %d)\n", s.Name, s.ID)
		for _, t := range s.RecentTopics {
			fmt.Fprintf(&b, "  - topic %d: %s", t.ID, t.Title)
			if t.Description != "" {
				fmt.Fprintf(&b, " (%s)", t.Description)
			}
			b.WriteString("\n")
		}
		for _, t := range s.InProgressTasks {
			fmt.Fprintf(&b, "  - in progress task %d: %s\n", t.ID, t.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session slots.
const (
	SlotPreviousTopic      = "previous_topic"
	SlotPreviousTopicSince = "previous_topic_since"
	SlotTurnCounter        = "turn_counter"
	SlotNudgeCounter       = "nudge_counter"
	SlotNudgePending       = "nudge_pending"
)

// StateStore keeps small per-session values between hook invocations.
// Every hook runs as its own process, so state cannot live in memory.
type StateStore interface {
	Get(session, slot string) (string, bool, error)
	Set(session, slot, value string) error
	Delete(session, slot string) error
	// Consume returns the value and removes it. Of two concurrent
	// consumers at most one sees ok == true.
	Consume(session, slot string) (string, bool, error)
}

// FileStateStore stores each slot as a file under Dir/<session>/<slot>.
type FileStateStore struct {
	Dir string
}

// NewFileStateStore returns a store rooted at dir.
func NewFileStateStore(dir string) *FileStateStore {
	return &FileStateStore{Dir: dir}
}

func (f *FileStateStore) path(session, slot string) string {
	return filepath.Join(f.Dir, sanitize(session), slot)
}

// sanitize maps a session id onto a safe single path element.
func sanitize(session string) string {
	if session == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range session {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (f *FileStateStore) Get(session, slot string) (string, bool, error) {
	data, err := os.ReadFile(f.path(session, slot))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", slot, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Set writes through a temp file and a rename so readers never see a
// partial value.
func (f *FileStateStore) Set(session, slot, value string) error {
	path := f.path(session, slot)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", slot, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit %s: %w", slot, err)
	}
	return nil
}

func (f *FileStateStore) Delete(session, slot string) error {
	err := os.Remove(f.path(session, slot))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", slot, err)
	}
	return nil
}

// Consume claims the slot by renaming it away first; only the process whose
// rename succeeds reads the value.
func (f *FileStateStore) Consume(session, slot string) (string, bool, error) {
	path := f.path(session, slot)
	claimed := path + "." + uuid.NewString() + ".claimed"
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("claim %s: %w", slot, err)
	}
	defer func() { _ = os.Remove(claimed) }()

	data, err := os.ReadFile(claimed)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", slot, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// ─── Typed session view ──────────────────────────────────────────────────────

// session is the typed view of one session's slots.
type session struct {
	store StateStore
	id    string
}

func (s session) previousTopic() (int64, bool, error) {
	v, ok, err := s.store.Get(s.id, SlotPreviousTopic)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// A corrupt slot is treated as unset.
		return 0, false, nil
	}
	return id, true, nil
}

func (s session) previousSince() (time.Time, error) {
	v, ok, err := s.store.Get(s.id, SlotPreviousTopicSince)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s session) setPreviousTopic(id int64, since time.Time) error {
	if err := s.store.Set(s.id, SlotPreviousTopicSince, since.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return s.store.Set(s.id, SlotPreviousTopic, strconv.FormatInt(id, 10))
}

func (s session) clearPreviousTopic() error {
	if err := s.store.Delete(s.id, SlotPreviousTopic); err != nil {
		return err
	}
	return s.store.Delete(s.id, SlotPreviousTopicSince)
}

func (s session) counter(slot string) (int, error) {
	v, ok, err := s.store.Get(s.id, slot)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func (s session) setCounter(slot string, n int) error {
	return s.store.Set(s.id, slot, strconv.Itoa(n))
}

func (s session) increment(slot string) (int, error) {
	n, err := s.counter(slot)
	if err != nil {
		return 0, err
	}
	n++
	return n, s.setCounter(slot, n)
}

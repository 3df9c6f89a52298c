package workflow

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileStateStore_SetGetDelete(t *testing.T) {
	s := NewFileStateStore(t.TempDir())

	if _, ok, err := s.Get("sess", SlotTurnCounter); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	if err := s.Set("sess", SlotTurnCounter, "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("sess", SlotTurnCounter, "4"); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}
	v, ok, err := s.Get("sess", SlotTurnCounter)
	if err != nil || !ok || v != "4" {
		t.Fatalf("Get = %q, %v, %v; want 4", v, ok, err)
	}

	if err := s.Delete("sess", SlotTurnCounter); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("sess", SlotTurnCounter); err != nil {
		t.Fatalf("Delete twice: %v", err)
	}
	if _, ok, _ := s.Get("sess", SlotTurnCounter); ok {
		t.Error("slot still present after Delete")
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir, "sess"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileStateStore_SessionsAreIsolated(t *testing.T) {
	s := NewFileStateStore(t.TempDir())
	if err := s.Set("a", SlotPreviousTopic, "1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get("b", SlotPreviousTopic); ok {
		t.Error("session b sees session a's slot")
	}
}

func TestFileStateStore_SessionIDIsSanitized(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStateStore(dir)
	if err := s.Set("../../escape", SlotPreviousTopic, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "______escape", SlotPreviousTopic)); err != nil {
		t.Errorf("slot not stored under sanitized name: %v", err)
	}
	if got := sanitize(""); got != "default" {
		t.Errorf("sanitize(\"\") = %q", got)
	}
}

func TestFileStateStore_ConsumeOnce(t *testing.T) {
	s := NewFileStateStore(t.TempDir())
	if err := s.Set("sess", SlotNudgePending, "1"); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.Consume("sess", SlotNudgePending)
			if err != nil {
				t.Errorf("Consume: %v", err)
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Consume succeeded %d times, want 1", wins)
	}
	if _, ok, _ := s.Get("sess", SlotNudgePending); ok {
		t.Error("slot survived Consume")
	}
}

func TestSession_CorruptSlotsReadAsUnset(t *testing.T) {
	s := NewFileStateStore(t.TempDir())
	sess := session{store: s, id: "x"}
	_ = s.Set("x", SlotPreviousTopic, "not-a-number")
	_ = s.Set("x", SlotTurnCounter, "-4")

	if _, ok, err := sess.previousTopic(); ok || err != nil {
		t.Errorf("previousTopic = %v, %v; want unset", ok, err)
	}
	n, err := sess.increment(SlotTurnCounter)
	if err != nil || n != 1 {
		t.Errorf("increment = %d, %v; want 1", n, err)
	}
}

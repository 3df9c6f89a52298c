package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/discussion-memory/internal/config"
	"github.com/HendryAvila/discussion-memory/internal/workflow"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestNew_RegistersEverything(t *testing.T) {
	s, cleanup, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	resp := s.HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if len(out.Result.Tools) != 19 {
		t.Errorf("tools/list returned %d tools, want 19: %s", len(out.Result.Tools), raw)
	}
}

func TestNew_BadDataDirFails(t *testing.T) {
	cfg := testConfig(t)
	// NUL is not a valid path byte.
	cfg.DBPath = filepath.Join(cfg.DataDir, "missing", "\x00", "db")

	_, cleanup, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	cleanup()
}

func TestServerInstructions_ShowMetaTag(t *testing.T) {
	if !strings.Contains(serverInstructions(), workflow.MetaTagFormat) {
		t.Error("instructions do not show the meta tag format")
	}
}

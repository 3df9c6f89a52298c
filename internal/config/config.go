// Package config loads dmem settings from defaults, an optional YAML file
// and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/discussion-memory/internal/logging"
	"github.com/HendryAvila/discussion-memory/internal/memory"
	"github.com/HendryAvila/discussion-memory/internal/workflow"
)

// Environment variables.
const (
	EnvHome     = "DMEM_HOME"
	EnvDBPath   = "DISCUSSION_DB_PATH"
	EnvLogLevel = "DMEM_LOG_LEVEL"
	EnvConfig   = "DMEM_CONFIG"
)

// FileName is the config file looked up inside the data dir.
const FileName = "config.yaml"

// Config is the full dmem configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	DBPath   string         `yaml:"db_path,omitempty"`
	StateDir string         `yaml:"state_dir,omitempty"`
	Log      LogConfig      `yaml:"log"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// LogConfig selects logger level, encoding and file.
type LogConfig struct {
	Level string `yaml:"level"`
	Mode  string `yaml:"mode"`
	// File is used by hook commands; the server logs to stderr unless set.
	File string `yaml:"file,omitempty"`
}

// WorkflowConfig tunes the session hooks.
type WorkflowConfig struct {
	BootstrapTopicID int64         `yaml:"bootstrap_topic_id"`
	ReminderEvery    int           `yaml:"reminder_every"`
	NudgeEvery       int           `yaml:"nudge_every"`
	NudgeWindow      int           `yaml:"nudge_window"`
	TagRetries       int           `yaml:"tag_retries"`
	TagRetryDelay    time.Duration `yaml:"tag_retry_delay"`
	RecordLogs       bool          `yaml:"record_logs"`
	LogMaxChars      int           `yaml:"log_max_chars"`
	ActiveDays       int           `yaml:"active_days"`
	// SummaryCommand, when set, is run with the relay prompt on stdin,
	// e.g. ["claude", "--model", "haiku", "-p"].
	SummaryCommand []string      `yaml:"summary_command,omitempty"`
	SummaryTimeout time.Duration `yaml:"summary_timeout,omitempty"`
}

// LimitsConfig overrides the store's page and budget limits.
type LimitsConfig struct {
	Topics        int `yaml:"topics"`
	TreeNodes     int `yaml:"tree_nodes"`
	Logs          int `yaml:"logs"`
	Decisions     int `yaml:"decisions"`
	SearchResults int `yaml:"search_results"`
}

// Default returns the built-in configuration.
func Default() Config {
	mem := memory.DefaultConfig()
	wf := workflow.DefaultConfig()
	return Config{
		DataDir: mem.DataDir,
		Log:     LogConfig{Level: "info", Mode: "prod"},
		Workflow: WorkflowConfig{
			BootstrapTopicID: wf.BootstrapTopicID,
			ReminderEvery:    wf.ReminderEvery,
			NudgeEvery:       wf.NudgeEvery,
			NudgeWindow:      wf.NudgeWindow,
			TagRetries:       wf.TagRetries,
			TagRetryDelay:    wf.TagRetryDelay,
			RecordLogs:       wf.RecordLogs,
			LogMaxChars:      wf.LogMaxChars,
			ActiveDays:       wf.ActiveDays,
			SummaryTimeout:   60 * time.Second,
		},
		Limits: LimitsConfig{
			Topics:        mem.MaxTopics,
			TreeNodes:     mem.MaxTreeNodes,
			Logs:          mem.MaxLogs,
			Decisions:     mem.MaxDecisions,
			SearchResults: mem.MaxSearchResults,
		},
	}
}

// Load builds the effective configuration. The file named by $DMEM_CONFIG
// must exist; <data_dir>/config.yaml is optional.
func Load() (Config, error) {
	cfg := Default()
	if home := os.Getenv(EnvHome); home != "" {
		cfg.DataDir = home
	}

	path := os.Getenv(EnvConfig)
	required := path != ""
	if !required {
		path = filepath.Join(cfg.DataDir, FileName)
	}
	if err := cfg.mergeFile(path, required); err != nil {
		return Config{}, err
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvHome); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.DataDir) == "" {
		problems = append(problems, "data_dir is empty")
	}
	w := c.Workflow
	for name, v := range map[string]int{
		"workflow.reminder_every": w.ReminderEvery,
		"workflow.nudge_every":    w.NudgeEvery,
		"workflow.nudge_window":   w.NudgeWindow,
		"workflow.tag_retries":    w.TagRetries,
		"workflow.log_max_chars":  w.LogMaxChars,
		"workflow.active_days":    w.ActiveDays,
		"limits.topics":           c.Limits.Topics,
		"limits.tree_nodes":       c.Limits.TreeNodes,
		"limits.logs":             c.Limits.Logs,
		"limits.decisions":        c.Limits.Decisions,
		"limits.search_results":   c.Limits.SearchResults,
	} {
		if v < 0 {
			problems = append(problems, name+" is negative")
		}
	}
	if w.TagRetryDelay < 0 {
		problems = append(problems, "workflow.tag_retry_delay is negative")
	}
	if w.BootstrapTopicID < 0 {
		problems = append(problems, "workflow.bootstrap_topic_id is negative")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes c as YAML to path, creating parent directories.
func Save(path string, c Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Path returns where Load looks for the config file.
func (c Config) Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(c.DataDir, FileName)
}

// StatePath returns the session state directory.
func (c Config) StatePath() string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return filepath.Join(c.DataDir, "state")
}

// HookLogPath returns the log file hook commands write to.
func (c Config) HookLogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "hooks.log")
}

// MemoryConfig maps onto the store configuration.
func (c Config) MemoryConfig(logger *logging.Logger) memory.Config {
	return memory.Config{
		DataDir:          c.DataDir,
		DBPath:           c.DBPath,
		MaxTopics:        c.Limits.Topics,
		MaxTreeNodes:     c.Limits.TreeNodes,
		MaxLogs:          c.Limits.Logs,
		MaxDecisions:     c.Limits.Decisions,
		MaxSearchResults: c.Limits.SearchResults,
		Logger:           logger,
	}
}

// WorkflowConfig maps onto the hook engine configuration.
func (c Config) WorkflowConfig() workflow.Config {
	w := c.Workflow
	return workflow.Config{
		BootstrapTopicID: w.BootstrapTopicID,
		ReminderEvery:    w.ReminderEvery,
		NudgeEvery:       w.NudgeEvery,
		NudgeWindow:      w.NudgeWindow,
		TagRetries:       w.TagRetries,
		TagRetryDelay:    w.TagRetryDelay,
		RecordLogs:       w.RecordLogs,
		LogMaxChars:      w.LogMaxChars,
		ActiveDays:       w.ActiveDays,
	}
}

// Summarizer returns the relay summarizer the settings describe.
func (c Config) Summarizer() workflow.Summarizer {
	fallback := workflow.TruncateSummarizer{Max: c.Workflow.LogMaxChars}
	if len(c.Workflow.SummaryCommand) == 0 {
		return fallback
	}
	return workflow.CommandSummarizer{
		Command:  c.Workflow.SummaryCommand,
		Timeout:  c.Workflow.SummaryTimeout,
		Fallback: fallback,
	}
}

// ServerLogOptions writes to stderr unless log.file is set.
func (c Config) ServerLogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Mode: c.Log.Mode, File: c.Log.File}
}

// HookLogOptions always writes to a file; hook stdout carries the response.
func (c Config) HookLogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Mode: c.Log.Mode, File: c.HookLogPath()}
}

// dmem: persistent discussion memory for AI coding assistants.
//
// An MCP server stores subjects, topics, logs, decisions and tasks in
// SQLite, and a set of hook commands keeps the assistant tagging and
// recording its discussions.
//
// Usage:
//
//	dmem serve               # Start MCP server (stdio transport)
//	dmem hook <event>        # Handle a Claude Code hook event
//	dmem migrate up|status   # Manage the database schema
//	dmem config show|init    # Inspect or write the config file
//	dmem update [--check]    # Update to the latest release
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/discussion-memory/internal/cli"
	"github.com/HendryAvila/discussion-memory/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "dmem",
		Short:   "Persistent discussion memory MCP server",
		Version: server.Version,
		Long: `dmem keeps a durable record of design discussions: subjects own a tree
of topics, topics collect logs and decisions, and tasks track follow-up work.

The data lives in ~/.claude-code-memory/discussion.db unless DMEM_HOME or
DISCUSSION_DB_PATH say otherwise.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.HookCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.ConfigCmd())
	rootCmd.AddCommand(cli.UpdateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

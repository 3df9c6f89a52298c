package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/discussion-memory/internal/config"
	"github.com/HendryAvila/discussion-memory/internal/logging"
	dmemserver "github.com/HendryAvila/discussion-memory/internal/server"
)

// ServeCmd returns the serve command, which runs the MCP server on stdio.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		Long: `Start the discussion memory MCP server on stdin/stdout.

Add it to your assistant's MCP config:

  {
    "mcpServers": {
      "discussion-memory": {
        "command": "dmem",
        "args": ["serve"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.ServerLogOptions())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	s, cleanup, err := dmemserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Graceful shutdown on interrupt.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stdout carries the MCP transport, so the notice goes to the log.
	go checkForUpdate(ctx, logger)

	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("mcp server stopped")
	return nil
}

package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/discussion-memory/internal/config"
	"github.com/HendryAvila/discussion-memory/internal/logging"
	"github.com/HendryAvila/discussion-memory/internal/memory"
)

// MigrateCmd returns the migrate command for inspecting and applying schema
// migrations outside the server.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or apply database schema migrations",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

// openUnmigrated opens the configured database without touching its schema.
func openUnmigrated() (*memory.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.ServerLogOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return memory.Open(cfg.MemoryConfig(logger))
}

func migrateUpCmd() *cobra.Command {
	var to int
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  "Apply pending migrations in order. Each migration commits on its own; a failure leaves earlier ones applied.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openUnmigrated()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ctx := cmd.Context()
			before, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if to <= 0 {
				to = store.LatestVersion()
			}
			if err := store.MigrateTo(ctx, to); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", color.New(color.FgRed).Sprint("FAILED"), err)
				return err
			}
			after, err := store.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if after == before {
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", color.New(color.FgBlue).Sprint("UP TO DATE"), after)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema %d -> %d\n", color.New(color.FgGreen).Sprint("MIGRATED"), before, after)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "stop at this version (default: latest)")
	return cmd
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List known migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openUnmigrated()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			statuses, err := store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n\n", store.Config().Path())
			for _, st := range statuses {
				mark := color.New(color.FgYellow).Sprint("PENDING")
				at := ""
				if st.Applied {
					mark = color.New(color.FgGreen).Sprint("APPLIED")
					at = "  " + st.AppliedAt
				}
				fmt.Fprintf(out, "  %s  %3d  %s%s\n", mark, st.Version, st.Name, at)
			}
			return nil
		},
	}
}

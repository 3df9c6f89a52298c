package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/discussion-memory/internal/logging"
	dmemserver "github.com/HendryAvila/discussion-memory/internal/server"
	"github.com/HendryAvila/discussion-memory/internal/updater"
)

// newUpdater is swapped in tests.
var newUpdater = updater.New

// UpdateCmd returns the update command, which replaces the binary with the
// latest GitHub release.
func UpdateCmd() *cobra.Command {
	var checkOnly bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update dmem to the latest release",
		Long:  "Download the latest release for this OS and architecture and replace the running binary. Restart the MCP server afterwards.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			u := newUpdater()
			res, err := u.Check(cmd.Context(), dmemserver.Version)
			if err != nil {
				return err
			}
			if !res.UpdateAvailable {
				fmt.Fprintf(out, "%s v%s\n", color.New(color.FgBlue).Sprint("UP TO DATE"), res.Current)
				return nil
			}
			fmt.Fprintf(out, "%s v%s -> v%s  %s\n", color.New(color.FgYellow).Sprint("AVAILABLE"), res.Current, res.Latest, res.ReleaseURL)
			if checkOnly {
				return nil
			}
			if err := u.Apply(cmd.Context(), res, ""); err != nil && !errors.Is(err, updater.ErrUpToDate) {
				fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("FAILED"), err)
				return err
			}
			fmt.Fprintf(out, "%s v%s, restart dmem to use it\n", color.New(color.FgGreen).Sprint("UPDATED"), res.Latest)
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkOnly, "check", false, "only report whether a newer release exists")
	return cmd
}

// checkForUpdate logs a notice when a newer release exists. Failures are
// logged at debug level only.
func checkForUpdate(ctx context.Context, log *logging.Logger) {
	res, err := newUpdater().Check(ctx, dmemserver.Version)
	if err != nil {
		log.Debug("update check failed", "error", err)
		return
	}
	if res.UpdateAvailable {
		log.Info("update available", "current", res.Current, "latest", res.Latest, "release", res.ReleaseURL, "hint", "run: dmem update")
	}
}

// Package cli provides the command-line interface for listingsync.
package cli

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/m4mayz/MauNgekos-sub000/internal/listings"
	"github.com/m4mayz/MauNgekos-sub000/internal/telemetry"
	"github.com/m4mayz/MauNgekos-sub000/pkg/version"
)

var telemetryClient telemetry.Client = telemetry.Noop()

var commandStartTime time.Time

var rootCmd = &cobra.Command{
	Use:   "listingsync",
	Short: "Offline-first cache and sync for boarding-house listings",
	Long: `Offline-first cache and sync for boarding-house listings

Keeps a local SQLite copy of the listing catalogue and each user's
favorites, queues writes made while offline, and replays them against
Firestore once connectivity returns.

Without LISTINGSYNC_FIRESTORE_PROJECT the commands run against an
in-memory remote store, which is useful for trying things out.

Telemetry:
  Telemetry is anonymous and only sent when an API key is configured.

  Opt-out with:
  	LISTINGSYNC_TELEMETRY_TRACKING_ENABLED=false`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commandStartTime = time.Now()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		durationMs := time.Since(commandStartTime).Milliseconds()
		hasFlags := cmd.Flags().NFlag() > 0
		telemetryClient.TrackCLICommandExecuted(cmd.Name(), hasFlags, durationMs)
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}

// Execute runs the CLI with fang enhancements.
func Execute(ctx context.Context, tc telemetry.Client) error {
	if tc == nil {
		tc = telemetry.Noop()
	}
	telemetryClient = tc

	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(version.Short()),
		fang.WithCommit(version.Commit),
	)
}

// trackCLIError wraps an error with telemetry tracking.
// Call this before returning errors from CLI commands.
func trackCLIError(cmdName string, err error) error {
	if err == nil {
		return nil
	}
	errorType := classifyError(err)
	telemetryClient.TrackCLIError(cmdName, errorType)
	return err
}

// classifyError determines the error type for telemetry.
func classifyError(err error) string {
	if errors.Is(err, listings.ErrTransient) {
		return "network_error"
	}
	errStr := err.Error()
	switch {
	case containsAny(errStr, "config", "configuration"):
		return "config_error"
	case containsAny(errStr, "database", "cache"):
		return "database_error"
	case containsAny(errStr, "firestore", "remote", "offline"):
		return "remote_error"
	case containsAny(errStr, "network", "timeout", "connection"):
		return "network_error"
	case containsAny(errStr, "permission", "access denied"):
		return "permission_error"
	case containsAny(errStr, "not found", "does not exist"):
		return "not_found_error"
	case containsAny(errStr, "invalid", "parse", "format"):
		return "validation_error"
	default:
		return "unknown_error"
	}
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/m4mayz/MauNgekos-sub000/internal/syncer"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Pull the approved listing working set into the local cache",
	Long: `Fetch every approved listing, plus listings that were approved and are
waiting for re-review, and write them to the local cache.

The refresh is skipped while offline and when the last successful refresh
is newer than the configured interval, unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay writes queued while offline",
	Long: `Replay pending writes against the remote store in the order they were
made. Writes that keep failing are dropped after the configured number of
retries.`,
	Args: cobra.NoArgs,
	RunE: runDrain,
}

func init() {
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "Refresh even if the last refresh is recent")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("refresh", err)
	}
	defer a.close()

	res, err := a.engine.FullRefresh(cmd.Context(), refreshForce)
	if err != nil {
		return trackCLIError("refresh", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, describeRefresh(res))
	return nil
}

func runDrain(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("drain", err)
	}
	defer a.close()

	res, err := a.engine.DrainQueue(cmd.Context())
	if err != nil {
		return trackCLIError("drain", err)
	}
	_, _ = fmt.Fprintln(os.Stdout, describeDrain(res))
	return nil
}

func describeRefresh(res syncer.RefreshResult) string {
	switch res.Skipped {
	case syncer.SkipOffline:
		return "Offline: refresh skipped."
	case syncer.SkipThrottled:
		return "Cache is fresh: refresh skipped (use --force to refresh anyway)."
	case syncer.SkipInProgress:
		return "A refresh is already running."
	}
	msg := fmt.Sprintf("Refreshed %d listings in %s.", res.Listings, res.Duration.Round(time.Millisecond))
	if res.Kept > 0 {
		msg += fmt.Sprintf(" Kept %d with queued local changes.", res.Kept)
	}
	return msg
}

func describeDrain(res syncer.DrainResult) string {
	if res.Offline {
		return "Offline: queued writes kept for later."
	}
	if res.Replayed+res.Failed+res.Dropped == 0 {
		return "Queue is empty."
	}
	return fmt.Sprintf("Replayed %d, failed %d, dropped %d; %d still queued.",
		res.Replayed, res.Failed, res.Dropped, res.Remaining)
}

package telemetry

import (
	"runtime"
	"strings"

	"github.com/m4mayz/MauNgekos-sub000/pkg/version"
)

// Event names - CLI
const (
	EventAppStarted         = "app_started"
	EventCLICommandExecuted = "cli_command_executed"
	EventCLIErrorOccurred   = "cli_error_occurred"
)

// Event names - Sync
const (
	EventQueueDrained       = "queue_drained"
	EventMutationDropped    = "mutation_dropped"
	EventFullRefresh        = "full_refresh"
	EventFullRefreshFailed  = "full_refresh_failed"
	EventOfflineWriteQueued = "offline_write_queued"
)

// baseProperties returns common properties for all events.
func baseProperties() map[string]interface{} {
	return map[string]interface{}{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"version":    version.Short(),
		"prerelease": version.IsPrerelease(),
		"dev_build":  version.IsDevBuild(),
	}
}

// TrackAppStarted tracks application startup.
func (c *posthogClient) TrackAppStarted(mode string, pendingMutations int64) {
	props := baseProperties()
	props["mode"] = mode
	props["pending_mutations"] = pendingMutations
	c.Track(EventAppStarted, props)
}

// TrackCLICommandExecuted tracks CLI command execution.
func (c *posthogClient) TrackCLICommandExecuted(commandName string, hasFlags bool, durationMs int64) {
	props := baseProperties()
	props["command_name"] = commandName
	props["has_flags"] = hasFlags
	props["execution_duration_ms"] = durationMs
	c.Track(EventCLICommandExecuted, props)
}

// TrackCLIError tracks CLI errors.
func (c *posthogClient) TrackCLIError(commandName, errorType string) {
	props := baseProperties()
	props["command_name"] = commandName
	props["error_type"] = errorType
	c.Track(EventCLIErrorOccurred, props)
}

// TrackQueueDrained tracks one drain of the mutation queue.
func (c *posthogClient) TrackQueueDrained(replayed, failed, dropped int, durationMs int64) {
	props := baseProperties()
	props["replayed"] = replayed
	props["failed"] = failed
	props["dropped"] = dropped
	props["duration_ms"] = durationMs
	c.Track(EventQueueDrained, props)
}

// TrackMutationDropped tracks a queued write discarded after exhausting its
// retries. The error text is truncated.
func (c *posthogClient) TrackMutationDropped(operation, collection string, retryCount int, lastError string) {
	props := baseProperties()
	props["operation"] = operation
	props["collection"] = collection
	props["retry_count"] = retryCount
	props["last_error"] = truncate(lastError, 200)
	c.Track(EventMutationDropped, props)
}

// TrackFullRefresh tracks a completed full refresh.
func (c *posthogClient) TrackFullRefresh(listingCount int, forced bool, durationMs int64) {
	props := baseProperties()
	props["listing_count"] = listingCount
	props["forced"] = forced
	props["duration_ms"] = durationMs
	c.Track(EventFullRefresh, props)
}

// TrackFullRefreshFailed tracks a failed full refresh.
func (c *posthogClient) TrackFullRefreshFailed(errorType string) {
	props := baseProperties()
	props["error_type"] = errorType
	c.Track(EventFullRefreshFailed, props)
}

// TrackOfflineWrite tracks a write queued because the device was offline.
func (c *posthogClient) TrackOfflineWrite(operation string) {
	props := baseProperties()
	props["operation"] = strings.ToLower(operation)
	c.Track(EventOfflineWriteQueued, props)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// --- noopClient implementations (no-ops) ---

func (c *noopClient) TrackAppStarted(mode string, pendingMutations int64)                          {}
func (c *noopClient) TrackCLICommandExecuted(commandName string, hasFlags bool, durationMs int64) {}
func (c *noopClient) TrackCLIError(commandName, errorType string)                                 {}
func (c *noopClient) TrackQueueDrained(replayed, failed, dropped int, durationMs int64)          {}
func (c *noopClient) TrackMutationDropped(operation, collection string, retryCount int, lastError string) {
}
func (c *noopClient) TrackFullRefresh(listingCount int, forced bool, durationMs int64) {}
func (c *noopClient) TrackFullRefreshFailed(errorType string)                         {}
func (c *noopClient) TrackOfflineWrite(operation string)                              {}

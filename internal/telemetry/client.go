// Package telemetry provides anonymous usage tracking via PostHog.
package telemetry

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
)

// PostHogAPIKey is set at compile time via ldflags.
var PostHogAPIKey string

// TrackingIDProvider is an interface for getting tracking IDs.
// This allows for testing without a real store.
type TrackingIDProvider interface {
	GetOrCreateTrackingID() string
}

// Client interface for telemetry operations.
type Client interface {
	Track(event string, properties map[string]interface{})
	Close()
	GetTrackingID() string

	// CLI events
	TrackAppStarted(mode string, pendingMutations int64)
	TrackCLICommandExecuted(commandName string, hasFlags bool, durationMs int64)
	TrackCLIError(commandName, errorType string)

	// Sync events
	TrackQueueDrained(replayed, failed, dropped int, durationMs int64)
	TrackMutationDropped(operation, collection string, retryCount int, lastError string)
	TrackFullRefresh(listingCount int, forced bool, durationMs int64)
	TrackFullRefreshFailed(errorType string)

	// Facade events
	TrackOfflineWrite(operation string)
}

// posthogClient wraps the PostHog SDK.
type posthogClient struct {
	client    posthog.Client
	sessionID string
	mu        sync.Mutex
}

// noopClient does nothing (for disabled telemetry).
type noopClient struct{}

// Config controls telemetry. APIKey falls back to PostHogAPIKey.
type Config struct {
	Enabled bool
	APIKey  string
}

// IsEnabled returns true if telemetry is enabled.
// Telemetry is opt-out: enabled unless LISTINGSYNC_TELEMETRY_TRACKING_ENABLED=false
// or no API key is available.
func IsEnabled(cfg Config) bool {
	if os.Getenv("LISTINGSYNC_TELEMETRY_TRACKING_ENABLED") == "false" {
		return false
	}
	return cfg.Enabled && apiKey(cfg) != ""
}

func apiKey(cfg Config) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	return PostHogAPIKey
}

// New creates a telemetry client with a persistent tracking ID.
// If provider is nil, a new UUID is generated per session.
func New(cfg Config, provider TrackingIDProvider) Client {
	if !IsEnabled(cfg) {
		return &noopClient{}
	}

	client, err := posthog.NewWithConfig(apiKey(cfg), posthog.Config{
		Endpoint:  "https://us.i.posthog.com",
		BatchSize: 250,
		Interval:  5 * time.Second,
	})
	if err != nil {
		return &noopClient{}
	}

	var sessionID string
	if provider != nil {
		sessionID = provider.GetOrCreateTrackingID()
	} else {
		sessionID = uuid.New().String()
	}

	return &posthogClient{
		client:    client,
		sessionID: sessionID,
	}
}

// Noop returns a client that drops every event.
func Noop() Client {
	return &noopClient{}
}

// Track sends an event to PostHog.
func (c *posthogClient) Track(event string, properties map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	props := posthog.NewProperties()
	props.Set("$process_person_profile", true)
	props.Set("$geoip_disable", true)

	for k, v := range properties {
		props.Set(k, v)
	}

	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.sessionID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes remaining events and closes the client.
func (c *posthogClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.client.Close()
}

// Track is a no-op for disabled telemetry.
func (c *noopClient) Track(event string, properties map[string]interface{}) {}

// Close is a no-op for disabled telemetry.
func (c *noopClient) Close() {}

// GetTrackingID returns the anonymous tracking ID for the session.
func (c *posthogClient) GetTrackingID() string {
	return c.sessionID
}

// GetTrackingID returns empty string for disabled telemetry.
func (c *noopClient) GetTrackingID() string {
	return ""
}

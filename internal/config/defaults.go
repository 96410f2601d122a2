package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),

		Sync: SyncConfig{
			RefreshInterval: 30 * time.Minute,
			MaxRetries:      3,
			ReplayRate:      10,
			ReplayBurst:     5,
		},

		Cache: CacheConfig{
			Enabled:      true,
			FavoritesTTL: 5 * time.Minute,
		},

		Connectivity: ConnectivityConfig{
			ProbeAddress: "8.8.8.8:53",
			ProbeTimeout: 3 * time.Second,
			PollInterval: 5 * time.Second,
		},

		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},

		// Opt-out; still needs an API key to send anything.
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// Package config handles application configuration management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variables read by Load.
const (
	EnvHome            = "LISTINGSYNC_HOME"
	EnvRefreshInterval = "LISTINGSYNC_REFRESH_INTERVAL"
	EnvMaxRetries      = "LISTINGSYNC_MAX_RETRIES"
	EnvReplayRate      = "LISTINGSYNC_REPLAY_RATE"
	EnvCacheEnabled    = "LISTINGSYNC_CACHE_ENABLED"
	EnvProjectID       = "LISTINGSYNC_FIRESTORE_PROJECT"
	EnvCredentials     = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	EnvProbeAddress    = "LISTINGSYNC_PROBE_ADDRESS"
	EnvLogLevel        = "LISTINGSYNC_LOG_LEVEL"
	EnvLogFormat       = "LISTINGSYNC_LOG_FORMAT"
	EnvTelemetryKey    = "LISTINGSYNC_POSTHOG_API_KEY"
)

// Config holds all application configuration.
type Config struct {
	// Base directory for all data (~/.listingsync)
	BaseDir string

	Sync         SyncConfig
	Cache        CacheConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Log          LogConfig
	Telemetry    TelemetryConfig
}

// SyncConfig tunes queue replay and full refreshes.
type SyncConfig struct {
	// Minimum gap between unforced full refreshes (default: 30m)
	RefreshInterval time.Duration
	// Failed replays before a queued write is dropped (default: 3)
	MaxRetries int
	// Replayed calls per second; 0 disables pacing
	ReplayRate  float64
	ReplayBurst int
}

// CacheConfig controls the local cache.
type CacheConfig struct {
	Enabled      bool
	FavoritesTTL time.Duration
}

// RemoteConfig selects the remote store. An empty ProjectID runs against
// the in-memory store.
type RemoteConfig struct {
	ProjectID       string
	CredentialsFile string
	EmulatorHost    string
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	ProbeAddress string
	ProbeTimeout time.Duration
	PollInterval time.Duration
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// TelemetryConfig configures anonymous usage tracking.
type TelemetryConfig struct {
	Enabled bool
	APIKey  string
}

// fileConfig mirrors config.toml. Pointers tell absent keys from zero values.
type fileConfig struct {
	Sync struct {
		RefreshInterval *string  `toml:"refresh_interval"`
		MaxRetries      *int     `toml:"max_retries"`
		ReplayRate      *float64 `toml:"replay_rate"`
		ReplayBurst     *int     `toml:"replay_burst"`
	} `toml:"sync"`
	Cache struct {
		Enabled      *bool   `toml:"enabled"`
		FavoritesTTL *string `toml:"favorites_ttl"`
	} `toml:"cache"`
	Remote struct {
		ProjectID       *string `toml:"project_id"`
		CredentialsFile *string `toml:"credentials_file"`
		EmulatorHost    *string `toml:"emulator_host"`
	} `toml:"remote"`
	Connectivity struct {
		ProbeAddress *string `toml:"probe_address"`
		ProbeTimeout *string `toml:"probe_timeout"`
		PollInterval *string `toml:"poll_interval"`
	} `toml:"connectivity"`
	Log struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`
	Telemetry struct {
		Enabled *bool   `toml:"enabled"`
		APIKey  *string `toml:"api_key"`
	} `toml:"telemetry"`
}

// Load builds the configuration from defaults, then <BaseDir>/config.toml,
// then the environment. A .env file in the working directory is loaded into
// the environment first without overriding variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if home := strings.TrimSpace(os.Getenv(EnvHome)); home != "" {
		cfg.BaseDir = home
	}

	if err := applyFile(cfg, GetPaths(cfg).Config); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure directories exist
	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the sync subsystem cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Sync.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.refresh_interval must be positive"))
	}
	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries must be positive"))
	}
	if c.Sync.ReplayRate < 0 {
		errs = append(errs, fmt.Errorf("sync.replay_rate must not be negative"))
	}
	if c.Connectivity.ProbeAddress == "" {
		errs = append(errs, fmt.Errorf("connectivity.probe_address is required"))
	}
	return errors.Join(errs...)
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setDuration := func(dst *time.Duration, v *string, key string) error {
		if v == nil {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(*v))
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if err := setDuration(&cfg.Sync.RefreshInterval, raw.Sync.RefreshInterval, "sync.refresh_interval"); err != nil {
		return err
	}
	setInt(&cfg.Sync.MaxRetries, raw.Sync.MaxRetries)
	if raw.Sync.ReplayRate != nil {
		cfg.Sync.ReplayRate = *raw.Sync.ReplayRate
	}
	setInt(&cfg.Sync.ReplayBurst, raw.Sync.ReplayBurst)

	setBool(&cfg.Cache.Enabled, raw.Cache.Enabled)
	if err := setDuration(&cfg.Cache.FavoritesTTL, raw.Cache.FavoritesTTL, "cache.favorites_ttl"); err != nil {
		return err
	}

	setString(&cfg.Remote.ProjectID, raw.Remote.ProjectID)
	setString(&cfg.Remote.CredentialsFile, raw.Remote.CredentialsFile)
	setString(&cfg.Remote.EmulatorHost, raw.Remote.EmulatorHost)

	setString(&cfg.Connectivity.ProbeAddress, raw.Connectivity.ProbeAddress)
	if err := setDuration(&cfg.Connectivity.ProbeTimeout, raw.Connectivity.ProbeTimeout, "connectivity.probe_timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Connectivity.PollInterval, raw.Connectivity.PollInterval, "connectivity.poll_interval"); err != nil {
		return err
	}

	setString(&cfg.Log.Level, raw.Log.Level)
	setString(&cfg.Log.Format, raw.Log.Format)

	setBool(&cfg.Telemetry.Enabled, raw.Telemetry.Enabled)
	setString(&cfg.Telemetry.APIKey, raw.Telemetry.APIKey)
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup(EnvRefreshInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRefreshInterval, err)
		}
		cfg.Sync.RefreshInterval = d
	}
	if v, ok := lookup(EnvMaxRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxRetries, err)
		}
		cfg.Sync.MaxRetries = n
	}
	if v, ok := lookup(EnvReplayRate); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvReplayRate, err)
		}
		cfg.Sync.ReplayRate = f
	}
	if v, ok := lookup(EnvCacheEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheEnabled, err)
		}
		cfg.Cache.Enabled = b
	}

	if v, ok := lookup(EnvProjectID); ok {
		cfg.Remote.ProjectID = v
	}
	if v, ok := lookup(EnvCredentials); ok {
		cfg.Remote.CredentialsFile = v
	}
	if v, ok := lookup(EnvEmulatorHost); ok {
		cfg.Remote.EmulatorHost = v
	}
	if v, ok := lookup(EnvProbeAddress); ok {
		cfg.Connectivity.ProbeAddress = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		cfg.Log.Format = v
	}
	if v, ok := lookup(EnvTelemetryKey); ok {
		cfg.Telemetry.APIKey = v
	}
	return nil
}

// lookup returns a trimmed, non-empty environment value.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// ensureDirectories creates required directories if they don't exist.
func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.BaseDir,
		filepath.Join(cfg.BaseDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

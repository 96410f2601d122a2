package config

import (
	"os"
	"path/filepath"
)

// Paths contains commonly used file paths.
type Paths struct {
	Database string // Local cache SQLite database
	Meta     string // Scalar sync state (schema version, last full sync)
	Config   string // Config file
	Logs     string // Log directory
}

// GetPaths returns all commonly used paths based on config.
func GetPaths(cfg *Config) Paths {
	return Paths{
		Database: filepath.Join(cfg.BaseDir, "cache.db"),
		Meta:     filepath.Join(cfg.BaseDir, "meta.json"),
		Config:   filepath.Join(cfg.BaseDir, "config.toml"),
		Logs:     filepath.Join(cfg.BaseDir, "logs"),
	}
}

// DefaultBaseDir returns the default base directory (~/.listingsync).
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".listingsync"
	}
	return filepath.Join(home, ".listingsync")
}

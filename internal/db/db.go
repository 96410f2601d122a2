// Package db provides the GORM-based local store for the listing cache.
// It uses the pure-Go SQLite driver; scalar state (schema version, last
// full sync) lives in a kv.Store next to the database file.
package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/m4mayz/MauNgekos-sub000/internal/kv"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// CurrentSchemaVersion is the schema version Initialize migrates to.
const CurrentSchemaVersion = 1

// ErrNotFound is returned by writes that target a missing row.
var ErrNotFound = errors.New("record not found")

// DB wraps the GORM database connection with cache-specific operations.
type DB struct {
	*gorm.DB
	path   string
	meta   *kv.Store
	initMu *sync.Mutex
}

// Config holds database configuration options.
type Config struct {
	Path string
	// MetaPath is the kv file for scalar state. Defaults to meta.json
	// next to the database.
	MetaPath    string
	Debug       bool
	MaxIdleConn int
	MaxOpenConn int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		MetaPath:    filepath.Join(filepath.Dir(path), "meta.json"),
		Debug:       false,
		MaxIdleConn: 1,
		MaxOpenConn: 1,
	}
}

// New opens the database and initializes the schema.
func New(cfg Config) (*DB, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if cfg.MetaPath == "" {
		cfg.MetaPath = filepath.Join(dir, "meta.json")
	}

	meta, err := kv.Open(cfg.MetaPath)
	if err != nil {
		return nil, fmt.Errorf("open meta store: %w", err)
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	// DELETE journal mode: WAL has visibility issues with the pure-Go driver.
	// foreign_keys is required for the favorites cascade.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxIdleConn <= 0 {
		cfg.MaxIdleConn = 1
	}
	if cfg.MaxOpenConn <= 0 {
		cfg.MaxOpenConn = 1
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	wrapped := &DB{DB: db, path: cfg.Path, meta: meta, initMu: &sync.Mutex{}}

	if err := wrapped.Initialize(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return wrapped, nil
}

// Initialize creates tables and indices when the persisted schema version is
// behind CurrentSchemaVersion, then bumps the marker. It is idempotent and
// safe to call concurrently.
func (db *DB) Initialize() error {
	db.initMu.Lock()
	defer db.initMu.Unlock()

	if db.meta.SchemaVersion() >= CurrentSchemaVersion && db.tablesPresent() {
		return nil
	}

	if err := db.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := db.createIndexes(); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := db.meta.SetSchemaVersion(CurrentSchemaVersion); err != nil {
		return fmt.Errorf("bump schema version: %w", err)
	}
	return nil
}

// tablesPresent guards against a database file that was removed while the
// meta file survived.
func (db *DB) tablesPresent() bool {
	m := db.Migrator()
	return m.HasTable(&models.Listing{}) &&
		m.HasTable(&models.Favorite{}) &&
		m.HasTable(&models.Mutation{})
}

// migrate runs GORM auto-migrations for all models.
func (db *DB) migrate() error {
	return db.AutoMigrate(
		&models.Listing{},
		&models.Favorite{},
		&models.Mutation{},
	)
}

// createIndexes adds the composite indexes GORM tags cannot express.
func (db *DB) createIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_listings_status_previous ON listings(status, previous_status)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price_min, price_max)`,
		`CREATE INDEX IF NOT EXISTS idx_favorites_user_saved ON favorites(user_id, saved_at)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the persisted schema version marker.
func (db *DB) SchemaVersion() int {
	return db.meta.SchemaVersion()
}

// Meta returns the scalar state store.
func (db *DB) Meta() *kv.Store {
	return db.meta
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction executes a function within a database transaction.
// The callback receives a *DB wrapper that uses the transaction.
// If the callback returns an error, the transaction is rolled back.
// If the callback returns nil, the transaction is committed.
func (d *DB) Transaction(fc func(tx *DB) error) error {
	return d.DB.Transaction(func(tx *gorm.DB) error {
		wrappedTx := &DB{DB: tx, path: d.path, meta: d.meta, initMu: d.initMu}
		return fc(wrappedTx)
	})
}

// Stats summarizes the cache contents.
type Stats struct {
	Listings         int64
	Favorites        int64
	PendingMutations int64
	CacheSizeBytes   int64
	SchemaVersion    int
}

// GetStats returns aggregate statistics about the database.
func (db *DB) GetStats() (*Stats, error) {
	var stats Stats

	n, err := db.CountListings()
	if err != nil {
		return nil, err
	}
	stats.Listings = n
	if err := db.Model(&models.Favorite{}).Count(&stats.Favorites).Error; err != nil {
		return nil, fmt.Errorf("count favorites: %w", err)
	}
	if err := db.Model(&models.Mutation{}).Count(&stats.PendingMutations).Error; err != nil {
		return nil, fmt.Errorf("count mutations: %w", err)
	}

	if info, err := os.Stat(db.path); err == nil {
		stats.CacheSizeBytes = info.Size()
	}
	stats.SchemaVersion = db.meta.SchemaVersion()

	return &stats, nil
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/m4mayz/MauNgekos-sub000/internal/config"
	"github.com/m4mayz/MauNgekos-sub000/internal/connectivity"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/listings"
	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote/firestore"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote/memory"
	"github.com/m4mayz/MauNgekos-sub000/internal/syncer"
)

// app bundles the components a command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *db.DB
	store    remote.Store
	remote   *remote.Listings
	monitor  *connectivity.ProbeMonitor
	engine   *syncer.Engine
	listings *listings.Service
	closers  []func() error
}

// openApp loads configuration and wires the cache, remote store,
// connectivity probe, sync engine and facade.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	paths := config.GetPaths(cfg)

	logCfg := log.DefaultConfig(paths.Logs)
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	if err := log.Init(logCfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &app{cfg: cfg, logger: log.L()}
	a.closers = append(a.closers, log.Close)

	dbCfg := db.DefaultConfig(paths.Database)
	dbCfg.MetaPath = paths.Meta
	a.db, err = db.New(dbCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	a.store, err = openRemote(ctx, cfg.Remote, a.logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if fs, ok := a.store.(*firestore.Store); ok {
		a.closers = append(a.closers, fs.Close)
	}
	a.remote = remote.NewListings(a.store, a.logger)

	a.monitor = connectivity.NewProbeMonitor(connectivity.ProbeConfig{
		Address:      cfg.Connectivity.ProbeAddress,
		Timeout:      cfg.Connectivity.ProbeTimeout,
		PollInterval: cfg.Connectivity.PollInterval,
	}, nil, a.logger)

	a.engine = syncer.New(a.db, a.remote, a.monitor, syncer.Config{
		RefreshInterval: cfg.Sync.RefreshInterval,
		MaxRetries:      cfg.Sync.MaxRetries,
		ReplayRate:      cfg.Sync.ReplayRate,
		ReplayBurst:     cfg.Sync.ReplayBurst,
	}, syncer.WithLogger(a.logger), syncer.WithTelemetry(telemetryClient))

	lcfg := listings.DefaultConfig()
	lcfg.CacheEnabled = cfg.Cache.Enabled
	lcfg.FavoritesTTL = cfg.Cache.FavoritesTTL
	a.listings = listings.NewService(a.db, a.remote, a.monitor, lcfg,
		listings.WithLogger(a.logger), listings.WithTelemetry(telemetryClient))

	return a, nil
}

// openRemote picks Firestore when a project is configured and the
// in-memory store otherwise.
func openRemote(ctx context.Context, cfg config.RemoteConfig, logger *slog.Logger) (remote.Store, error) {
	if cfg.ProjectID == "" {
		logger.Warn("no firestore project configured, using in-memory remote store")
		return memory.New(), nil
	}
	if cfg.EmulatorHost != "" {
		// The Firestore client reads the emulator address from the environment.
		if err := os.Setenv(config.EnvEmulatorHost, cfg.EmulatorHost); err != nil {
			return nil, fmt.Errorf("set emulator host: %w", err)
		}
	}
	store, err := firestore.New(ctx, firestore.Config{
		ProjectID:       cfg.ProjectID,
		CredentialsFile: cfg.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("connect remote: %w", err)
	}
	return store, nil
}

// close stops background work and releases resources in reverse order.
func (a *app) close() {
	if a.engine != nil {
		a.engine.StopListener()
		a.engine.Wait()
	}
	if a.listings != nil {
		a.listings.Wait()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

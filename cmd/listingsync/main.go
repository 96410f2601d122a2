// listingsync keeps an offline-first local cache of boarding-house listings
// in sync with Firestore.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4mayz/MauNgekos-sub000/internal/cli"
	"github.com/m4mayz/MauNgekos-sub000/internal/config"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}

	// The tracking id lives in the cache's meta store. The cache is closed
	// again before the command opens its own.
	telemetryClient, pending := startTelemetry(cfg)
	telemetryClient.TrackAppStarted("cli", pending)

	err = cli.Execute(ctx, telemetryClient)
	telemetryClient.Close()
	if err != nil {
		os.Exit(1)
	}
}

// startTelemetry creates the telemetry client and reports the queue depth
// at startup. Without a usable cache it falls back to a per-session tracking
// id and a depth of 0.
func startTelemetry(cfg *config.Config) (telemetry.Client, int64) {
	tcfg := telemetry.Config{
		Enabled: cfg.Telemetry.Enabled,
		APIKey:  cfg.Telemetry.APIKey,
	}
	paths := config.GetPaths(cfg)
	dbCfg := db.DefaultConfig(paths.Database)
	dbCfg.MetaPath = paths.Meta
	database, err := db.New(dbCfg)
	if err != nil {
		return telemetry.New(tcfg, nil), 0
	}
	defer func() { _ = database.Close() }()

	client := telemetry.New(tcfg, telemetry.KVTrackingID{Store: database.Meta()})
	n, err := database.CountPendingMutations()
	if err != nil {
		return client, 0
	}
	return client, n
}

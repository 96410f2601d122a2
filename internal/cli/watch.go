package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/m4mayz/MauNgekos-sub000/internal/metrics"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the cache in sync until interrupted",
	Long: `Poll connectivity and, on every transition to online, replay queued
writes and refresh the cache when a refresh is due.

With --metrics-addr, Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return trackCLIError("watch", err)
	}
	defer a.close()

	var srv *http.Server
	if watchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: watchMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", "error", err)
			}
		}()
		a.logger.Info("serving metrics", "addr", watchMetricsAddr)
	}

	a.engine.StartListener(ctx)
	a.monitor.Start(ctx)

	// Catch up once; the listener only reacts to transitions.
	if a.monitor.IsOnline() {
		if _, err := a.engine.DrainQueue(ctx); err != nil {
			a.logger.Warn("initial drain failed", "error", err)
		}
		if _, err := a.engine.FullRefresh(ctx, false); err != nil {
			a.logger.Warn("initial refresh failed", "error", err)
		}
	}

	fmt.Println("Watching for connectivity changes. Press Ctrl+C to stop.")
	<-ctx.Done()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

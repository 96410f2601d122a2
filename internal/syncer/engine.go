// Package syncer replays queued offline writes against the remote store and
// pulls the approved working set back into the local cache.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/m4mayz/MauNgekos-sub000/internal/connectivity"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/metrics"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// ErrQueueExhausted marks a queued mutation dropped after its last retry.
var ErrQueueExhausted = errors.New("mutation retries exhausted")

// DefaultRefreshInterval is the minimum gap between unforced full refreshes.
const DefaultRefreshInterval = 30 * time.Minute

// Remote is the subset of remote.Listings the engine replays against.
type Remote interface {
	ApprovedWorkingSet(ctx context.Context) ([]*models.Listing, error)
	Create(ctx context.Context, doc map[string]interface{}) (string, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	AddFavorite(ctx context.Context, userID, listingID string) error
	RemoveFavorite(ctx context.Context, userID, listingID string) error
}

// Telemetry receives sync events. telemetry.Client satisfies it.
type Telemetry interface {
	TrackQueueDrained(replayed, failed, dropped int, durationMs int64)
	TrackMutationDropped(operation, collection string, retryCount int, lastError string)
	TrackFullRefresh(listingCount int, forced bool, durationMs int64)
	TrackFullRefreshFailed(errorType string)
}

// Config tunes the engine.
type Config struct {
	RefreshInterval time.Duration
	MaxRetries      int
	// ReplayRate caps replayed calls per second; zero or less disables pacing.
	ReplayRate  float64
	ReplayBurst int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		MaxRetries:      models.MaxMutationRetries,
		ReplayRate:      10,
		ReplayBurst:     5,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine drives queue drains and full refreshes.
type Engine struct {
	db        *db.DB
	remote    Remote
	monitor   connectivity.Monitor
	cfg       Config
	logger    *slog.Logger
	telemetry Telemetry
	limiter   *rate.Limiter
	now       func() time.Time

	refreshing atomic.Bool
	drainMu    sync.Mutex

	listenMu     sync.Mutex
	unsubscribe  func()
	listenCancel context.CancelFunc
	wg           sync.WaitGroup

	statusMu       sync.Mutex
	lastDrain      DrainResult
	lastDrainAt    time.Time
	lastRefreshErr string
}

// New creates an engine. Zero config fields take their defaults.
func New(database *db.DB, remote Remote, monitor connectivity.Monitor, cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaults.RefreshInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.ReplayBurst <= 0 {
		cfg.ReplayBurst = 1
	}

	limit := rate.Inf
	if cfg.ReplayRate > 0 {
		limit = rate.Limit(cfg.ReplayRate)
	}

	e := &Engine{
		db:      database,
		remote:  remote,
		monitor: monitor,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.ReplayBurst),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger)
	if e.telemetry == nil {
		e.telemetry = nopTelemetry{}
	}
	return e
}

// DrainResult summarizes one queue drain.
type DrainResult struct {
	// Offline is set when the drain was skipped because the device was offline.
	Offline   bool
	Replayed  int
	Failed    int
	Dropped   int
	Remaining int64
	Duration  time.Duration
}

// DrainQueue replays pending mutations in insertion order. It is a no-op
// while offline. A failing item does not stop the items after it; an item
// is dropped once it has failed MaxRetries times. Concurrent drains are
// serialized.
func (e *Engine) DrainQueue(ctx context.Context) (DrainResult, error) {
	if !e.monitor.IsOnline() {
		return DrainResult{Offline: true}, nil
	}

	e.drainMu.Lock()
	defer e.drainMu.Unlock()

	ctx = log.WithRunID(ctx, log.NewRunID())
	logger := log.FromContext(ctx, e.logger)
	start := e.now()

	items, err := e.db.ListPendingMutations()
	if err != nil {
		return DrainResult{}, err
	}
	if len(items) > 0 {
		logger.Info("draining mutation queue", "pending", len(items))
	}

	var res DrainResult
	for _, item := range items {
		// Reload: an earlier create may have rewritten this item's target.
		m, err := e.db.GetMutation(item.ID)
		if err != nil {
			return e.finishDrain(res, start), err
		}
		if m == nil {
			continue
		}

		if m.Exhausted(e.cfg.MaxRetries) {
			if err := e.drop(logger, m); err != nil {
				return e.finishDrain(res, start), err
			}
			res.Dropped++
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return e.finishDrain(res, start), err
		}

		if err := e.replay(ctx, logger, m); err != nil {
			res.Failed++
			metrics.MutationsReplayed.WithLabelValues(string(m.Operation), metrics.ResultFailure).Inc()
			logger.Warn("mutation replay failed",
				"mutation_id", m.ID, "op", m.Operation, "document_id", m.DocumentID,
				"retry", m.RetryCount+1, "error", err)

			if err := e.db.RecordMutationFailure(m.ID, err.Error()); err != nil {
				return e.finishDrain(res, start), err
			}
			m.RetryCount++
			m.LastError = err.Error()
			if m.Exhausted(e.cfg.MaxRetries) {
				if err := e.drop(logger, m); err != nil {
					return e.finishDrain(res, start), err
				}
				res.Dropped++
			}
			continue
		}

		if err := e.db.RemoveMutation(m.ID); err != nil {
			return e.finishDrain(res, start), err
		}
		res.Replayed++
		metrics.MutationsReplayed.WithLabelValues(string(m.Operation), metrics.ResultSuccess).Inc()
	}

	res = e.finishDrain(res, start)
	if res.Replayed+res.Failed+res.Dropped > 0 {
		logger.Info("mutation queue drained",
			"replayed", res.Replayed, "failed", res.Failed, "dropped", res.Dropped,
			"remaining", res.Remaining, "duration", res.Duration)
		e.telemetry.TrackQueueDrained(res.Replayed, res.Failed, res.Dropped, res.Duration.Milliseconds())
	}
	return res, nil
}

func (e *Engine) finishDrain(res DrainResult, start time.Time) DrainResult {
	res.Duration = e.now().Sub(start)
	metrics.DrainDuration.Observe(res.Duration.Seconds())

	if remaining, err := e.db.CountPendingMutations(); err == nil {
		res.Remaining = remaining
		metrics.QueueDepth.Set(float64(remaining))
	}

	e.statusMu.Lock()
	e.lastDrain = res
	e.lastDrainAt = e.now()
	e.statusMu.Unlock()
	return res
}

// drop removes an exhausted mutation and reports it.
func (e *Engine) drop(logger *slog.Logger, m *models.Mutation) error {
	if err := e.db.RemoveMutation(m.ID); err != nil {
		return err
	}
	metrics.MutationsReplayed.WithLabelValues(string(m.Operation), metrics.ResultDropped).Inc()
	logger.Error("dropping queued mutation",
		"mutation_id", m.ID, "op", m.Operation, "collection", m.Collection,
		"document_id", m.DocumentID, "retry", m.RetryCount,
		"last_error", m.LastError, "error", ErrQueueExhausted)
	e.telemetry.TrackMutationDropped(string(m.Operation), m.Collection, m.RetryCount, m.LastError)
	return nil
}

// replay sends one mutation to the remote store.
func (e *Engine) replay(ctx context.Context, logger *slog.Logger, m *models.Mutation) error {
	payload, err := m.Payload()
	if err != nil {
		return err
	}

	switch m.Operation {
	case models.OpCreate:
		id, err := e.remote.Create(ctx, payload)
		if err != nil {
			return err
		}
		if models.IsTempID(m.DocumentID) {
			e.reconcile(logger, m.DocumentID, id)
		}
		return nil

	case models.OpUpdate, models.OpUpdateStatus:
		if models.IsTempID(m.DocumentID) {
			return fmt.Errorf("listing %s has not been created remotely", m.DocumentID)
		}
		return e.remote.Update(ctx, m.DocumentID, payload)

	case models.OpDelete:
		if models.IsTempID(m.DocumentID) {
			return fmt.Errorf("listing %s has not been created remotely", m.DocumentID)
		}
		return e.remote.Delete(ctx, m.DocumentID)

	case models.OpSave, models.OpUnsave:
		listingID, _ := payload[models.FieldListingID].(string)
		if listingID == "" {
			return fmt.Errorf("mutation %d: missing %s", m.ID, models.FieldListingID)
		}
		if models.IsTempID(listingID) {
			return fmt.Errorf("listing %s has not been created remotely", listingID)
		}
		if m.Operation == models.OpSave {
			if err := e.remote.AddFavorite(ctx, m.DocumentID, listingID); err != nil {
				return err
			}
			if err := e.db.MarkFavoriteSynced(m.DocumentID, listingID); err != nil {
				logger.Warn("mark favorite synced", "user_id", m.DocumentID, "listing_id", listingID, "error", err)
			}
			return nil
		}
		return e.remote.RemoveFavorite(ctx, m.DocumentID, listingID)

	default:
		return fmt.Errorf("mutation %d: unknown operation %q", m.ID, m.Operation)
	}
}

// reconcile moves local state from a temp id to the server id after the
// queued create succeeded. Failures are logged; the remote write stands.
func (e *Engine) reconcile(logger *slog.Logger, tempID, serverID string) {
	if err := e.db.RenameListing(tempID, serverID); err != nil && !errors.Is(err, db.ErrNotFound) {
		logger.Warn("re-key cached listing", "temp_id", tempID, "id", serverID, "error", err)
	}
	n, err := e.db.RewriteMutationTarget(tempID, serverID)
	if err != nil {
		logger.Warn("rewrite queued mutations", "temp_id", tempID, "id", serverID, "error", err)
		return
	}
	logger.Info("offline listing created", "temp_id", tempID, "id", serverID, "rewritten", n)
}

// RefreshSkip explains why FullRefresh did nothing.
type RefreshSkip string

const (
	SkipNone       RefreshSkip = ""
	SkipInProgress RefreshSkip = "in_progress"
	SkipThrottled  RefreshSkip = "throttled"
	SkipOffline    RefreshSkip = "offline"
)

// RefreshResult summarizes one full refresh.
type RefreshResult struct {
	Skipped  RefreshSkip
	Listings int
	// Kept counts fetched listings left untouched because writes for them
	// are still queued.
	Kept     int
	Duration time.Duration
}

// FullRefresh pulls the approved working set into the cache. A call made
// while another refresh is running returns immediately. Unless force is
// set, it also does nothing when the last refresh is more recent than the
// refresh interval. Offline is not an error. Fetch and cache errors are
// returned and leave the last-sync time unchanged.
func (e *Engine) FullRefresh(ctx context.Context, force bool) (RefreshResult, error) {
	if !e.refreshing.CompareAndSwap(false, true) {
		metrics.FullRefreshes.WithLabelValues(metrics.ResultSkipped).Inc()
		return RefreshResult{Skipped: SkipInProgress}, nil
	}
	defer e.refreshing.Store(false)

	if !force && !e.RefreshDue() {
		metrics.FullRefreshes.WithLabelValues(metrics.ResultSkipped).Inc()
		return RefreshResult{Skipped: SkipThrottled}, nil
	}
	if !e.monitor.IsOnline() {
		metrics.FullRefreshes.WithLabelValues(metrics.ResultSkipped).Inc()
		return RefreshResult{Skipped: SkipOffline}, nil
	}

	ctx = log.WithRunID(ctx, log.NewRunID())
	logger := log.FromContext(ctx, e.logger)
	start := e.now()

	listings, err := e.remote.ApprovedWorkingSet(ctx)
	if err != nil {
		return RefreshResult{}, e.refreshFailed(logger, "fetch", err)
	}

	now := e.now()
	for _, l := range listings {
		l.SyncedAt = now.UnixMilli()
	}
	held, err := e.db.UpsertRemoteListings(listings)
	if err != nil {
		return RefreshResult{}, e.refreshFailed(logger, "cache", err)
	}
	if len(held) > 0 {
		logger.Info("kept queued local changes", "listings", held)
	}
	if err := e.db.Meta().SetLastFullSync(now); err != nil {
		return RefreshResult{}, e.refreshFailed(logger, "meta", err)
	}

	res := RefreshResult{Listings: len(listings), Kept: len(held), Duration: e.now().Sub(start)}
	metrics.FullRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.ListingsRefreshed.Add(float64(len(listings)))
	e.telemetry.TrackFullRefresh(res.Listings, force, res.Duration.Milliseconds())
	logger.Info("full refresh complete", "listings", res.Listings, "forced", force, "duration", res.Duration)

	e.statusMu.Lock()
	e.lastRefreshErr = ""
	e.statusMu.Unlock()
	return res, nil
}

func (e *Engine) refreshFailed(logger *slog.Logger, stage string, err error) error {
	metrics.FullRefreshes.WithLabelValues(metrics.ResultError).Inc()
	e.telemetry.TrackFullRefreshFailed(stage)
	logger.Error("full refresh failed", "stage", stage, "error", err)

	e.statusMu.Lock()
	e.lastRefreshErr = err.Error()
	e.statusMu.Unlock()
	return fmt.Errorf("full refresh: %w", err)
}

// RefreshDue reports whether the refresh interval has passed since the last
// successful full refresh.
func (e *Engine) RefreshDue() bool {
	last := e.db.Meta().LastFullSync()
	if last.IsZero() {
		return true
	}
	return e.now().Sub(last) >= e.cfg.RefreshInterval
}

// StartListener subscribes to connectivity changes. Each transition to
// online starts a queue drain and, independently, a full refresh if one is
// due. Calling it again while listening does nothing.
func (e *Engine) StartListener(ctx context.Context) {
	e.listenMu.Lock()
	defer e.listenMu.Unlock()
	if e.unsubscribe != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	e.listenCancel = cancel
	e.unsubscribe = e.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		e.listenMu.Lock()
		if e.listenCancel == nil || ctx.Err() != nil {
			e.listenMu.Unlock()
			return
		}
		e.wg.Add(2)
		e.listenMu.Unlock()

		go func() {
			defer e.wg.Done()
			if _, err := e.DrainQueue(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("background drain failed", "error", err)
			}
		}()
		go func() {
			defer e.wg.Done()
			if _, err := e.FullRefresh(ctx, false); err != nil && ctx.Err() == nil {
				e.logger.Warn("background refresh failed", "error", err)
			}
		}()
	})
	e.logger.Debug("connectivity listener started")
}

// StopListener unsubscribes and waits for triggered work to finish. It is
// safe to call when not listening.
func (e *Engine) StopListener() {
	e.listenMu.Lock()
	unsubscribe, cancel := e.unsubscribe, e.listenCancel
	e.unsubscribe, e.listenCancel = nil, nil
	e.listenMu.Unlock()

	if unsubscribe == nil {
		return
	}
	unsubscribe()
	cancel()
	e.wg.Wait()
	e.logger.Debug("connectivity listener stopped")
}

// Wait blocks until listener-triggered work has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Status is a point-in-time view of the engine.
type Status struct {
	Refreshing       bool
	Listening        bool
	Online           bool
	LastFullSync     time.Time
	RefreshDue       bool
	PendingMutations int64
	LastDrain        DrainResult
	LastDrainAt      time.Time
	LastRefreshError string
}

// Status returns the current engine state.
func (e *Engine) Status() (Status, error) {
	pending, err := e.db.CountPendingMutations()
	if err != nil {
		return Status{}, fmt.Errorf("count pending mutations: %w", err)
	}

	e.listenMu.Lock()
	listening := e.unsubscribe != nil
	e.listenMu.Unlock()

	online := e.monitor.IsOnline()
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return Status{
		Refreshing:       e.refreshing.Load(),
		Listening:        listening,
		Online:           online,
		LastFullSync:     e.db.Meta().LastFullSync(),
		RefreshDue:       e.RefreshDue(),
		PendingMutations: pending,
		LastDrain:        e.lastDrain,
		LastDrainAt:      e.lastDrainAt,
		LastRefreshError: e.lastRefreshErr,
	}, nil
}

type nopTelemetry struct{}

func (nopTelemetry) TrackQueueDrained(int, int, int, int64)          {}
func (nopTelemetry) TrackMutationDropped(string, string, int, string) {}
func (nopTelemetry) TrackFullRefresh(int, bool, int64)               {}
func (nopTelemetry) TrackFullRefreshFailed(string)                   {}

// Package listings is the data-access layer the application talks to. It
// routes each read and write between the remote store, the local cache and
// the mutation queue depending on connectivity.
package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/m4mayz/MauNgekos-sub000/internal/connectivity"
	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/metrics"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// Errors returned to callers. Underlying causes stay reachable through
// errors.Is.
var (
	// ErrRemoteUnavailable means a direct remote write or read failed and
	// no cached or queued fallback applied.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrTransient accompanies ErrRemoteUnavailable when the failure was a
	// network or timeout error that may succeed on retry.
	ErrTransient = errors.New("transient network error")
	// ErrCacheError means the local store failed.
	ErrCacheError = errors.New("local cache error")
	// ErrNotFound means the listing is absent remotely and in the cache.
	ErrNotFound = errors.New("listing not found")
	// ErrInvalidListing means the write failed validation.
	ErrInvalidListing = errors.New("invalid listing")
)

// Remote is the subset of remote.Listings the service uses.
type Remote interface {
	ApprovedWorkingSet(ctx context.Context) ([]*models.Listing, error)
	ByStatus(ctx context.Context, status models.ListingStatus) ([]*models.Listing, error)
	ByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Create(ctx context.Context, doc map[string]interface{}) (string, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
	FavoriteIDs(ctx context.Context, userID string) ([]string, error)
	AddFavorite(ctx context.Context, userID, listingID string) error
	RemoveFavorite(ctx context.Context, userID, listingID string) error
}

// Telemetry receives facade events. telemetry.Client satisfies it.
type Telemetry interface {
	TrackOfflineWrite(operation string)
}

// Config tunes the service.
type Config struct {
	// CacheEnabled turns on the local cache and mutation queue. Without it
	// every call goes straight to the remote store.
	CacheEnabled bool
	// FavoritesTTL bounds how long a reconciled favorites list is served
	// without asking the remote store again.
	FavoritesTTL       time.Duration
	FavoritesCacheSize int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		CacheEnabled:       true,
		FavoritesTTL:       5 * time.Minute,
		FavoritesCacheSize: 64,
	}
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(t Telemetry) Option {
	return func(s *Service) { s.telemetry = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service routes listing and favorite operations.
type Service struct {
	db        *db.DB
	remote    Remote
	monitor   connectivity.Monitor
	cfg       Config
	logger    *slog.Logger
	telemetry Telemetry
	now       func() time.Time

	favorites *expirable.LRU[string, []*models.Listing]

	// background cache writes and favorite pushes
	wg sync.WaitGroup

	// last favorite push per user; later pushes wait on it
	pushMu   sync.Mutex
	pushTail map[string]chan struct{}

	tempMu   sync.Mutex
	lastTemp int64
}

// NewService creates a service. Zero favorites settings take their defaults.
func NewService(database *db.DB, r Remote, monitor connectivity.Monitor, cfg Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.FavoritesTTL <= 0 {
		cfg.FavoritesTTL = defaults.FavoritesTTL
	}
	if cfg.FavoritesCacheSize <= 0 {
		cfg.FavoritesCacheSize = defaults.FavoritesCacheSize
	}

	s := &Service{
		db:      database,
		remote:  r,
		monitor: monitor,
		cfg:     cfg,
		now:     time.Now,

		pushTail: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	if s.telemetry == nil {
		s.telemetry = nopTelemetry{}
	}
	s.favorites = expirable.NewLRU[string, []*models.Listing](cfg.FavoritesCacheSize, nil, cfg.FavoritesTTL)
	return s
}

// Wait blocks until background cache writes and favorite pushes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// direct reports whether writes go straight to the remote store.
func (s *Service) direct() bool {
	return !s.cfg.CacheEnabled || s.monitor.IsOnline()
}

// tempID returns a fresh temp id, unique within this process.
func (s *Service) tempID() string {
	s.tempMu.Lock()
	defer s.tempMu.Unlock()

	ms := s.now().UnixMilli()
	if ms <= s.lastTemp {
		ms = s.lastTemp + 1
	}
	s.lastTemp = ms
	return models.NewTempID(time.UnixMilli(ms))
}

// background runs fn detached from the caller's cancellation.
func (s *Service) background(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// enqueue appends a mutation and applies the optimistic local change in one
// transaction.
func (s *Service) enqueue(ctx context.Context, op models.Operation, collection, docID string, payload map[string]interface{}, apply func(tx *db.DB) error) error {
	if !s.cfg.CacheEnabled {
		return fmt.Errorf("%s %s: offline with local cache disabled: %w", op, docID, ErrRemoteUnavailable)
	}

	err := s.db.Transaction(func(tx *db.DB) error {
		if _, err := tx.EnqueueMutation(op, collection, docID, payload); err != nil {
			return err
		}
		if apply != nil {
			return apply(tx)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue %s %s: %w: %w", op, docID, ErrCacheError, err)
	}

	metrics.MutationsEnqueued.WithLabelValues(string(op)).Inc()
	s.telemetry.TrackOfflineWrite(string(op))
	log.FromContext(ctx, s.logger).Info("queued offline write", "op", op, "collection", collection, "document_id", docID)
	return nil
}

// mirror applies a local change after a successful remote write. Failures
// are logged; the remote write stands.
func (s *Service) mirror(ctx context.Context, what string, fn func() error) {
	if !s.cfg.CacheEnabled {
		return
	}
	if err := fn(); err != nil {
		metrics.MirrorFailures.Inc()
		log.FromContext(ctx, s.logger).Warn("cache mirror failed", "op", what, "error", err)
	}
}

// remoteError maps a remote failure onto the caller taxonomy.
func remoteError(op string, err error) error {
	if errors.Is(err, remote.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	if remote.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w: %w", op, ErrRemoteUnavailable, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrRemoteUnavailable, err)
}

func cacheError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCacheError, err)
}

func cloneListings(in []*models.Listing) []*models.Listing {
	out := make([]*models.Listing, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}

type nopTelemetry struct{}

func (nopTelemetry) TrackOfflineWrite(string) {}

package listings

import (
	"context"
	"errors"
	"fmt"

	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/metrics"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// GetApprovedListings returns the approved working set: approved listings
// plus pending ones under re-review, newest first.
//
// Online, or when forceRefresh is set, the remote store is read first and
// the cache is updated in the background; a remote failure falls back to
// the cache. Offline without forceRefresh, the cache answers directly.
func (s *Service) GetApprovedListings(ctx context.Context, forceRefresh bool) ([]*models.Listing, error) {
	return s.read(ctx, "approved", forceRefresh,
		s.remote.ApprovedWorkingSet,
		s.db.GetApprovedListings)
}

// GetListingsByStatus returns listings with the given status, newest first.
func (s *Service) GetListingsByStatus(ctx context.Context, status models.ListingStatus, forceRefresh bool) ([]*models.Listing, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidListing, status)
	}
	return s.read(ctx, "status", forceRefresh,
		func(ctx context.Context) ([]*models.Listing, error) { return s.remote.ByStatus(ctx, status) },
		func() ([]*models.Listing, error) { return s.db.GetListingsByStatus(status) })
}

// GetListingsByOwner returns every listing of an owner, newest first.
func (s *Service) GetListingsByOwner(ctx context.Context, ownerID string, forceRefresh bool) ([]*models.Listing, error) {
	return s.read(ctx, "owner", forceRefresh,
		func(ctx context.Context) ([]*models.Listing, error) { return s.remote.ByOwner(ctx, ownerID) },
		func() ([]*models.Listing, error) { return s.db.GetListingsByOwner(ownerID) })
}

// GetFilteredListings narrows the approved working set by f.
func (s *Service) GetFilteredListings(ctx context.Context, f models.ListingFilter, forceRefresh bool) ([]*models.Listing, error) {
	return s.read(ctx, "filtered", forceRefresh,
		func(ctx context.Context) ([]*models.Listing, error) {
			all, err := s.remote.ApprovedWorkingSet(ctx)
			if err != nil {
				return nil, err
			}
			out := all[:0:0]
			for _, l := range all {
				if f.Matches(l) {
					out = append(out, l)
				}
			}
			return out, nil
		},
		func() ([]*models.Listing, error) { return s.db.GetFilteredListings(f) })
}

// GetListing returns one listing. The remote copy wins when reachable; the
// cached copy answers otherwise. ErrNotFound means neither has it.
func (s *Service) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	logger := log.FromContext(ctx, s.logger)

	var remoteErr error
	if s.direct() && !models.IsTempID(id) {
		l, err := s.remote.Get(ctx, id)
		if err == nil {
			s.cacheInBackground(ctx, []*models.Listing{l})
			return l, nil
		}
		if !s.cfg.CacheEnabled {
			return nil, remoteError("get listing "+id, err)
		}
		if !errors.Is(err, remote.ErrNotFound) {
			remoteErr = err
			metrics.CacheFallbacks.WithLabelValues("get").Inc()
			logger.Warn("remote read failed, serving cache", "source", "get", "id", id,
					"transient", remote.IsTransient(err), "error", err)
		}
	}

	l, err := s.db.GetListing(id)
	if err != nil {
		return nil, cacheError("get listing "+id, err)
	}
	if l != nil {
		return l, nil
	}
	if remoteErr != nil {
		return nil, remoteError("get listing "+id, remoteErr)
	}
	return nil, fmt.Errorf("get listing %s: %w", id, ErrNotFound)
}

// read implements the shared read policy. source labels logs and metrics.
func (s *Service) read(ctx context.Context, source string, forceRefresh bool,
	fetch func(context.Context) ([]*models.Listing, error),
	cached func() ([]*models.Listing, error),
) ([]*models.Listing, error) {
	logger := log.FromContext(ctx, s.logger)

	if !s.cfg.CacheEnabled {
		out, err := fetch(ctx)
		if err != nil {
			return nil, remoteError("read "+source, err)
		}
		return out, nil
	}

	if forceRefresh || s.monitor.IsOnline() {
		out, err := fetch(ctx)
		if err == nil {
			s.cacheInBackground(ctx, out)
			return out, nil
		}

		metrics.CacheFallbacks.WithLabelValues(source).Inc()
		logger.Warn("remote read failed, serving cache", "source", source,
			"transient", remote.IsTransient(err), "error", err)
		local, cerr := cached()
		if cerr != nil {
			return nil, fmt.Errorf("read %s: %w", source, errors.Join(
				remoteError("remote", err), cacheError("cache", cerr)))
		}
		return local, nil
	}

	metrics.CacheFallbacks.WithLabelValues("offline").Inc()
	local, err := cached()
	if err != nil {
		return nil, cacheError("read "+source, err)
	}
	return local, nil
}

// cacheInBackground upserts remote results without blocking the caller.
// Listings with queued writes keep their local state.
func (s *Service) cacheInBackground(ctx context.Context, listings []*models.Listing) {
	if !s.cfg.CacheEnabled || len(listings) == 0 {
		return
	}
	rows := cloneListings(listings)
	s.background(ctx, func(ctx context.Context) {
		now := s.now().UnixMilli()
		for _, l := range rows {
			l.SyncedAt = now
		}
		held, err := s.db.UpsertRemoteListings(rows)
		if err != nil {
			metrics.MirrorFailures.Inc()
			log.FromContext(ctx, s.logger).Warn("background cache update failed", "listings", len(rows), "error", err)
			return
		}
		if len(held) > 0 {
			log.FromContext(ctx, s.logger).Debug("kept queued local changes", "listings", held)
		}
	})
}

package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/metrics"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// hydrateConcurrency bounds parallel remote reads when resolving favorite ids.
const hydrateConcurrency = 4

// SaveFavorite marks a listing as a favorite of userID.
//
// The cache is updated before returning. Online, the remote write then runs
// in the background and the cached change is rolled back if it fails.
// Offline, or for a listing not yet created remotely, the write is queued.
func (s *Service) SaveFavorite(ctx context.Context, userID, listingID string) error {
	return s.toggleFavorite(ctx, userID, listingID, true)
}

// UnsaveFavorite removes a listing from userID's favorites, following the
// same two-phase flow as SaveFavorite.
func (s *Service) UnsaveFavorite(ctx context.Context, userID, listingID string) error {
	return s.toggleFavorite(ctx, userID, listingID, false)
}

func (s *Service) toggleFavorite(ctx context.Context, userID, listingID string, save bool) error {
	op := models.OpUnsave
	if save {
		op = models.OpSave
	}
	logger := log.FromContext(ctx, s.logger).With("op", op, "user_id", userID, "listing_id", listingID)

	if !s.cfg.CacheEnabled {
		if err := s.pushFavorite(ctx, userID, listingID, save); err != nil {
			return remoteError(string(op)+" favorite", err)
		}
		return nil
	}

	now := s.now()
	apply := func(tx *db.DB) error {
		if save {
			return tx.SaveFavorite(userID, listingID, now, false)
		}
		return tx.RemoveFavorite(userID, listingID)
	}
	defer s.favorites.Remove(userID)

	if !s.monitor.IsOnline() || models.IsTempID(listingID) {
		payload := map[string]interface{}{models.FieldListingID: listingID}
		return s.enqueue(ctx, op, models.CollectionUsers, userID, payload, apply)
	}

	if save {
		if err := s.cacheFavoriteTarget(ctx, logger, listingID); err != nil {
			return err
		}
	}

	// Phase 1: local state, remembering what to restore. The remote write
	// goes ahead even when the cache cannot mirror it.
	rollback, err := s.applyFavorite(userID, listingID, apply)
	if err != nil {
		metrics.MirrorFailures.Inc()
		logger.Warn("cache mirror failed", "error", err)
	}

	// Phase 2: remote write, after any earlier toggle of this user.
	s.pushInOrder(ctx, userID, func(ctx context.Context) {
		if err := s.pushFavorite(ctx, userID, listingID, save); err != nil {
			logger.Warn("favorite sync failed, rolling back", "error", err)
			if rollback != nil {
				if rerr := rollback(); rerr != nil {
					logger.Error("favorite rollback failed", "error", rerr)
				}
			}
			s.favorites.Remove(userID)
			return
		}
		if save {
			if err := s.db.MarkFavoriteSynced(userID, listingID); err != nil {
				logger.Warn("mark favorite synced", "error", err)
			}
		}
	})
	return nil
}

// applyFavorite runs apply against the cache and returns a function that
// restores the previous edge.
func (s *Service) applyFavorite(userID, listingID string, apply func(tx *db.DB) error) (func() error, error) {
	prev, err := s.db.GetFavorite(userID, listingID)
	if err != nil {
		return nil, err
	}
	if err := apply(s.db); err != nil {
		return nil, err
	}
	return func() error {
		if prev == nil {
			return s.db.RemoveFavorite(userID, listingID)
		}
		return s.db.SaveFavorite(userID, listingID, time.UnixMilli(prev.SavedAt), prev.Synced)
	}, nil
}

// cacheFavoriteTarget makes sure a listing about to be favorited is cached,
// fetching it when needed. A listing the remote store does not have is
// ErrNotFound; other remote failures are left to the favorite write.
func (s *Service) cacheFavoriteTarget(ctx context.Context, logger *slog.Logger, listingID string) error {
	cached, err := s.db.GetListing(listingID)
	if err != nil {
		logger.Warn("favorite target lookup failed", "error", err)
		return nil
	}
	if cached != nil {
		return nil
	}

	l, err := s.remote.Get(ctx, listingID)
	if errors.Is(err, remote.ErrNotFound) {
		return remoteError("save favorite "+listingID, err)
	}
	if err != nil {
		logger.Warn("favorite target fetch failed", "error", err, "transient", remote.IsTransient(err))
		return nil
	}
	l.SyncedAt = s.now().UnixMilli()
	if _, err := s.db.UpsertRemoteListings([]*models.Listing{l}); err != nil {
		logger.Warn("favorite target cache failed", "error", err)
	}
	return nil
}

// pushInOrder runs push in the background once every earlier push for
// userID has finished, so remote favorite writes land in call order.
func (s *Service) pushInOrder(ctx context.Context, userID string, push func(ctx context.Context)) {
	done := make(chan struct{})
	s.pushMu.Lock()
	prev := s.pushTail[userID]
	s.pushTail[userID] = done
	s.pushMu.Unlock()

	s.background(ctx, func(ctx context.Context) {
		defer func() {
			s.pushMu.Lock()
			if s.pushTail[userID] == done {
				delete(s.pushTail, userID)
			}
			s.pushMu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}
		push(ctx)
	})
}

func (s *Service) pushFavorite(ctx context.Context, userID, listingID string, save bool) error {
	if save {
		return s.remote.AddFavorite(ctx, userID, listingID)
	}
	return s.remote.RemoveFavorite(ctx, userID, listingID)
}

// GetFavorites returns userID's favorite listings, most recently saved
// first, straight from the cache. When online, a background task then
// reconciles the cache with the remote favorites and passes the fresh list
// to onFresh, if given. A list reconciled within the favorites TTL is
// returned as is, without a background fetch.
func (s *Service) GetFavorites(ctx context.Context, userID string, onFresh func([]*models.Listing)) ([]*models.Listing, error) {
	logger := log.FromContext(ctx, s.logger)

	if !s.cfg.CacheEnabled {
		fresh, err := s.fetchFavorites(ctx, userID)
		if err != nil {
			return nil, remoteError("get favorites", err)
		}
		return fresh, nil
	}

	if fresh, ok := s.favorites.Get(userID); ok {
		return cloneListings(fresh), nil
	}

	cached, err := s.db.GetFavoriteListings(userID)
	if err != nil {
		return nil, cacheError("get favorites", err)
	}

	if s.monitor.IsOnline() {
		s.background(ctx, func(ctx context.Context) {
			fresh, err := s.reconcileFavorites(ctx, userID)
			if err != nil {
				logger.Warn("favorites reconcile failed", "user_id", userID, "error", err)
				return
			}
			s.favorites.Add(userID, fresh)
			if onFresh != nil {
				onFresh(cloneListings(fresh))
			}
		})
	}
	return cached, nil
}

// fetchFavorites reads the remote favorite ids and resolves each to its
// listing. Ids whose listing no longer exists are skipped.
func (s *Service) fetchFavorites(ctx context.Context, userID string) ([]*models.Listing, error) {
	ids, err := s.remote.FavoriteIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	resolved := make([]*models.Listing, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			l, err := s.remote.Get(gctx, id)
			if errors.Is(err, remote.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			resolved[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve favorites: %w", err)
	}

	out := make([]*models.Listing, 0, len(resolved))
	for _, l := range resolved {
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

// reconcileFavorites caches the remote favorites and returns the cached
// list. While favorite writes for the user are still queued, only the
// listings are cached so the pending changes are not overwritten.
func (s *Service) reconcileFavorites(ctx context.Context, userID string) ([]*models.Listing, error) {
	fresh, err := s.fetchFavorites(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows := cloneListings(fresh)
	ids := make([]string, 0, len(rows))
	for _, l := range rows {
		l.SyncedAt = now.UnixMilli()
		ids = append(ids, l.ID)
	}
	held, err := s.db.UpsertRemoteListings(rows)
	if err != nil {
		return nil, err
	}
	if len(held) > 0 {
		ids, err = s.cachedIDs(ids, held)
		if err != nil {
			return nil, err
		}
	}

	pending, err := s.db.HasPendingMutations(models.CollectionUsers, userID)
	if err != nil {
		return nil, err
	}
	if pending {
		log.FromContext(ctx, s.logger).Debug("favorite writes queued, keeping cached favorites", "user_id", userID)
	} else if err := s.db.ReplaceFavorites(userID, ids, now); err != nil {
		return nil, err
	}

	return s.db.GetFavoriteListings(userID)
}

// cachedIDs drops from ids the held listings that are not in the cache, such
// as ones deleted offline, since favorites need a cached listing.
func (s *Service) cachedIDs(ids, held []string) ([]string, error) {
	gone := make(map[string]bool, len(held))
	for _, id := range held {
		l, err := s.db.GetListing(id)
		if err != nil {
			return nil, err
		}
		gone[id] = l == nil
	}
	out := ids[:0:0]
	for _, id := range ids {
		if !gone[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

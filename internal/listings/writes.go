package listings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m4mayz/MauNgekos-sub000/internal/db"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// CreateListing stores a new listing with status pending. Online, the
// remote store assigns the id. Offline, the listing gets a temp id, is
// queued for creation and is cached right away.
func (s *Service) CreateListing(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	created := l.Clone()
	created.Status = models.StatusPending
	created.PreviousStatus = ""
	created.SyncedAt = 0
	if err := created.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidListing, err)
	}

	now := s.now().UnixMilli()
	created.CreatedAt = now
	created.UpdatedAt = now

	if s.direct() {
		id, err := s.remote.Create(ctx, created.ToDocument())
		if err != nil {
			return nil, remoteError("create listing", err)
		}
		created.ID = id
		s.mirror(ctx, "create", func() error { return s.db.UpsertListing(created) })
		return created, nil
	}

	created.ID = s.tempID()
	err := s.enqueue(ctx, models.OpCreate, models.CollectionListings, created.ID, created.ToDocument(),
		func(tx *db.DB) error { return tx.UpsertListing(created) })
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateListing applies patch to a listing. When the current listing is
// known, the merged result is validated before anything is written.
func (s *Service) UpdateListing(ctx context.Context, id string, patch models.ListingPatch) error {
	if patch.Status != nil || patch.PreviousStatus != nil {
		return fmt.Errorf("%w: use UpdateListingStatus or ResubmitListing to change status", ErrInvalidListing)
	}
	if _, err := s.validatePatch(ctx, id, patch); err != nil {
		return err
	}
	return s.update(ctx, models.OpUpdate, id, patch)
}

// ResubmitListing applies an owner's edit and sends the listing back to
// review. An approved listing keeps previousStatus=approved so it stays
// visible while pending.
func (s *Service) ResubmitListing(ctx context.Context, id string, patch models.ListingPatch) error {
	current, err := s.validatePatch(ctx, id, patch)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("resubmit listing %s: %w", id, ErrNotFound)
	}

	pending := models.StatusPending
	patch.Status = &pending
	switch current.Status {
	case models.StatusApproved:
		prev := models.StatusApproved
		patch.PreviousStatus = &prev
	case models.StatusRejected:
		cleared := models.ListingStatus("")
		patch.PreviousStatus = &cleared
	default:
		prev := current.PreviousStatus
		patch.PreviousStatus = &prev
	}
	return s.update(ctx, models.OpUpdate, id, patch)
}

// UpdateListingStatus moves a listing through moderation. Approving or
// rejecting clears previousStatus.
func (s *Service) UpdateListingStatus(ctx context.Context, id string, status models.ListingStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, status)
	}
	return s.update(ctx, models.OpUpdateStatus, id, models.StatusPatch(status))
}

// DeleteListing removes a listing. A listing that only exists locally has
// its queued writes discarded instead of queueing a remote delete.
func (s *Service) DeleteListing(ctx context.Context, id string) error {
	if models.IsTempID(id) {
		err := s.db.Transaction(func(tx *db.DB) error {
			if _, err := tx.RemoveMutationsForDocument(id); err != nil {
				return err
			}
			return tx.DeleteListing(id)
		})
		if err != nil {
			return cacheError("delete listing "+id, err)
		}
		s.logger.Info("discarded unsynced listing", "document_id", id)
		return nil
	}

	if s.direct() {
		if err := s.remote.Delete(ctx, id); err != nil {
			return remoteError("delete listing "+id, err)
		}
		s.mirror(ctx, "delete", func() error { return s.db.DeleteListing(id) })
		return nil
	}

	return s.enqueue(ctx, models.OpDelete, models.CollectionListings, id, nil,
		func(tx *db.DB) error { return tx.DeleteListing(id) })
}

// update routes a patch. Temp ids always go through the queue so they are
// replayed after their create.
func (s *Service) update(ctx context.Context, op models.Operation, id string, patch models.ListingPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	now := s.now()

	if s.direct() && !models.IsTempID(id) {
		if err := s.remote.Update(ctx, id, patch.Document()); err != nil {
			return remoteError("update listing "+id, err)
		}
		s.mirror(ctx, string(op), func() error { return updateCached(s.db, id, patch, now) })
		return nil
	}

	return s.enqueue(ctx, op, models.CollectionListings, id, patch.Document(),
		func(tx *db.DB) error { return updateCached(tx, id, patch, now) })
}

// updateCached writes patch to the cached row, if there is one.
func updateCached(d *db.DB, id string, patch models.ListingPatch, now time.Time) error {
	cols := patch.Columns()
	cols["updated_at"] = now.UnixMilli()
	if err := d.UpdateListing(id, cols); err != nil && !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

// validatePatch checks patch against the current listing and returns it,
// or nil when the listing cannot be found.
func (s *Service) validatePatch(ctx context.Context, id string, patch models.ListingPatch) (*models.Listing, error) {
	current, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	merged := current.Clone()
	patch.Apply(merged)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidListing, err)
	}
	return current, nil
}

// current returns the cached listing, or the remote one when nothing is
// cached and the device is online.
func (s *Service) current(ctx context.Context, id string) (*models.Listing, error) {
	if s.cfg.CacheEnabled {
		l, err := s.db.GetListing(id)
		if err != nil {
			return nil, cacheError("get listing "+id, err)
		}
		if l != nil || !s.monitor.IsOnline() || models.IsTempID(id) {
			return l, nil
		}
	}

	l, err := s.remote.Get(ctx, id)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, nil
		}
		return nil, remoteError("get listing "+id, err)
	}
	return l, nil
}

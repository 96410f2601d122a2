package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/m4mayz/MauNgekos-sub000/internal/log"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// Listings maps listing and favorite operations onto a Store.
type Listings struct {
	store  Store
	logger *slog.Logger
}

// NewListings wraps store. A nil logger uses the global one.
func NewListings(store Store, logger *slog.Logger) *Listings {
	return &Listings{store: store, logger: log.OrDefault(logger)}
}

// Store returns the underlying document store.
func (r *Listings) Store() Store {
	return r.store
}

// ApprovedWorkingSet returns approved listings plus pending listings whose
// previous status was approved, de-duplicated and newest first. When the
// store rejects the compound query for lack of an index, all pending
// listings are fetched and filtered here instead.
func (r *Listings) ApprovedWorkingSet(ctx context.Context) ([]*models.Listing, error) {
	var approved, rereview []Document

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.store.Query(gctx, Query{
			Collection: models.CollectionListings,
			Where:      []Filter{Eq(models.FieldStatus, string(models.StatusApproved))},
		})
		if err != nil {
			return fmt.Errorf("query approved listings: %w", err)
		}
		approved = docs
		return nil
	})
	g.Go(func() error {
		docs, err := r.store.Query(gctx, Query{
			Collection: models.CollectionListings,
			Where: []Filter{
				Eq(models.FieldStatus, string(models.StatusPending)),
				Eq(models.FieldPreviousStatus, string(models.StatusApproved)),
			},
		})
		if errors.Is(err, ErrIndexMissing) {
			r.logger.Warn("compound query index missing, filtering pending listings locally")
			docs, err = r.store.Query(gctx, Query{
				Collection: models.CollectionListings,
				Where:      []Filter{Eq(models.FieldStatus, string(models.StatusPending))},
			})
			docs = filterDocs(docs, models.FieldPreviousStatus, string(models.StatusApproved))
		}
		if err != nil {
			return fmt.Errorf("query re-review listings: %w", err)
		}
		rereview = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return decodeListings(append(approved, rereview...))
}

// ByStatus returns listings with status, newest first.
func (r *Listings) ByStatus(ctx context.Context, status models.ListingStatus) ([]*models.Listing, error) {
	docs, err := r.store.Query(ctx, Query{
		Collection: models.CollectionListings,
		Where:      []Filter{Eq(models.FieldStatus, string(status))},
	})
	if err != nil {
		return nil, fmt.Errorf("query listings by status: %w", err)
	}
	return decodeListings(docs)
}

// ByOwner returns all listings of an owner, newest first.
func (r *Listings) ByOwner(ctx context.Context, ownerID string) ([]*models.Listing, error) {
	docs, err := r.store.Query(ctx, Query{
		Collection: models.CollectionListings,
		Where:      []Filter{Eq(models.FieldOwnerID, ownerID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query listings by owner: %w", err)
	}
	return decodeListings(docs)
}

// Get returns a single listing or an error wrapping ErrNotFound.
func (r *Listings) Get(ctx context.Context, id string) (*models.Listing, error) {
	doc, err := r.store.Get(ctx, models.CollectionListings, id)
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return models.ListingFromDocument(doc.ID, doc.Data)
}

// Create adds a listing document and returns the server id. Timestamps are
// assigned by the server.
func (r *Listings) Create(ctx context.Context, doc map[string]interface{}) (string, error) {
	data := copyDoc(doc)
	data[models.FieldCreatedAt] = ServerTimestamp
	data[models.FieldUpdatedAt] = ServerTimestamp

	id, err := r.store.Add(ctx, models.CollectionListings, data)
	if err != nil {
		return "", fmt.Errorf("create listing: %w", err)
	}
	return id, nil
}

// Update merges fields into a listing and bumps its server timestamp.
func (r *Listings) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	data := copyDoc(fields)
	data[models.FieldUpdatedAt] = ServerTimestamp

	if err := r.store.Update(ctx, models.CollectionListings, id, data); err != nil {
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	return nil
}

// Delete removes a listing document.
func (r *Listings) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, models.CollectionListings, id); err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}

// FavoriteIDs returns the favorite listing ids stored on a user document.
// A user without a document has no favorites.
func (r *Listings) FavoriteIDs(ctx context.Context, userID string) ([]string, error) {
	doc, err := r.store.Get(ctx, models.CollectionUsers, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return models.FavoriteIDsFromDocument(doc.Data)
}

// AddFavorite adds listingID to the user's favorites array.
func (r *Listings) AddFavorite(ctx context.Context, userID, listingID string) error {
	err := r.store.Update(ctx, models.CollectionUsers, userID, map[string]interface{}{
		models.FieldFavorites: Union(listingID),
	})
	if err != nil {
		return fmt.Errorf("add favorite %s: %w", listingID, err)
	}
	return nil
}

// RemoveFavorite removes listingID from the user's favorites array.
func (r *Listings) RemoveFavorite(ctx context.Context, userID, listingID string) error {
	err := r.store.Update(ctx, models.CollectionUsers, userID, map[string]interface{}{
		models.FieldFavorites: Remove(listingID),
	})
	if err != nil {
		return fmt.Errorf("remove favorite %s: %w", listingID, err)
	}
	return nil
}

func filterDocs(docs []Document, field string, want interface{}) []Document {
	out := docs[:0:0]
	for _, d := range docs {
		if d.Data[field] == want {
			out = append(out, d)
		}
	}
	return out
}

// decodeListings converts documents, drops duplicate ids and sorts by
// creation time, newest first.
func decodeListings(docs []Document) ([]*models.Listing, error) {
	seen := make(map[string]struct{}, len(docs))
	out := make([]*models.Listing, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}

		l, err := models.ListingFromDocument(d.ID, d.Data)
		if err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", d.ID, err)
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

const upsertBatchSize = 100

// visibleClause selects the approved working set: approved listings plus
// pending ones under re-review after approval.
const visibleClause = "status = ? OR (status = ? AND previous_status = ?)"

func (db *DB) visible() *gorm.DB {
	return db.Where(visibleClause, models.StatusApproved, models.StatusPending, models.StatusApproved)
}

func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}
}

// UpsertListing inserts or replaces a listing by id.
func (db *DB) UpsertListing(l *models.Listing) error {
	if err := db.Clauses(upsertClause()).Create(l).Error; err != nil {
		return fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	return nil
}

// UpsertListings inserts or replaces listings in a single transaction.
// Either every row is written or none is.
func (db *DB) UpsertListings(listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	return db.Transaction(func(tx *DB) error {
		if err := tx.Clauses(upsertClause()).CreateInBatches(listings, upsertBatchSize).Error; err != nil {
			return fmt.Errorf("upsert listings: %w", err)
		}
		return nil
	})
}

// UpsertRemoteListings caches listings fetched from the remote store. Rows
// that still have queued mutations keep their local state, so optimistic
// offline edits and deletes are not undone before they replay. It returns
// the ids that were skipped.
func (db *DB) UpsertRemoteListings(listings []*models.Listing) ([]string, error) {
	if len(listings) == 0 {
		return nil, nil
	}

	var skipped []string
	err := db.Transaction(func(tx *DB) error {
		var queued []string
		err := tx.Model(&models.Mutation{}).
			Where("collection = ?", models.CollectionListings).
			Distinct().Pluck("document_id", &queued).Error
		if err != nil {
			return fmt.Errorf("list queued listings: %w", err)
		}
		held := make(map[string]struct{}, len(queued))
		for _, id := range queued {
			held[id] = struct{}{}
		}

		rows := make([]*models.Listing, 0, len(listings))
		for _, l := range listings {
			if _, ok := held[l.ID]; ok {
				skipped = append(skipped, l.ID)
				continue
			}
			rows = append(rows, l)
		}
		return tx.UpsertListings(rows)
	})
	if err != nil {
		return nil, err
	}
	return skipped, nil
}

// GetListing returns a listing by id, or nil if it is not cached.
func (db *DB) GetListing(id string) (*models.Listing, error) {
	var l models.Listing
	err := db.Where("id = ?", id).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return &l, nil
}

// GetListingsByStatus returns listings with the given status, newest first.
func (db *DB) GetListingsByStatus(status models.ListingStatus) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := db.Where("status = ?", status).
		Order("created_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("get listings by status: %w", err)
	}
	return listings, nil
}

// GetApprovedListings returns the approved working set, newest first.
func (db *DB) GetApprovedListings() ([]*models.Listing, error) {
	var listings []*models.Listing
	err := db.visible().
		Order("created_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("get approved listings: %w", err)
	}
	return listings, nil
}

// GetListingsByOwner returns every cached listing of an owner regardless of
// status, newest first.
func (db *DB) GetListingsByOwner(ownerID string) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("get listings by owner: %w", err)
	}
	return listings, nil
}

// GetFilteredListings applies a filter to the approved working set.
func (db *DB) GetFilteredListings(f models.ListingFilter) ([]*models.Listing, error) {
	q := db.visible().Model(&models.Listing{})

	if f.PriceMin > 0 {
		q = q.Where("price_max >= ?", f.PriceMin)
	}
	if f.PriceMax > 0 {
		q = q.Where("price_min <= ?", f.PriceMax)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.AvailableOnly {
		q = q.Where("available_rooms > 0")
	}
	for _, facility := range f.Facilities {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(listings.facilities) WHERE json_each.value = ?)", facility)
	}

	var listings []*models.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("get filtered listings: %w", err)
	}
	return listings, nil
}

// UpdateListing applies column updates to a cached listing. It returns
// ErrNotFound when the row does not exist.
func (db *DB) UpdateListing(id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	result := db.Model(&models.Listing{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("update listing %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("update listing %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteListing removes a listing. Favorites referencing it are removed by
// the foreign key cascade. Deleting a missing listing is not an error.
func (db *DB) DeleteListing(id string) error {
	if err := db.Where("id = ?", id).Delete(&models.Listing{}).Error; err != nil {
		return fmt.Errorf("delete listing %s: %w", id, err)
	}
	return nil
}

// RenameListing re-keys a listing, typically from a temp id to the id the
// server assigned. Favorites follow the listing.
func (db *DB) RenameListing(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	return db.Transaction(func(tx *DB) error {
		existing, err := tx.GetListing(newID)
		if err != nil {
			return err
		}

		if existing == nil {
			result := tx.Exec("UPDATE listings SET id = ? WHERE id = ?", newID, oldID)
			if result.Error != nil {
				return fmt.Errorf("rename listing %s: %w", oldID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("rename listing %s: %w", oldID, ErrNotFound)
			}
			return nil
		}

		// The server copy was cached already; move favorites and drop the
		// local row.
		if err := tx.Exec("UPDATE OR IGNORE favorites SET listing_id = ? WHERE listing_id = ?", newID, oldID).Error; err != nil {
			return fmt.Errorf("move favorites %s: %w", oldID, err)
		}
		return tx.DeleteListing(oldID)
	})
}

// CountListings returns the number of cached listings.
func (db *DB) CountListings() (int64, error) {
	var count int64
	if err := db.Model(&models.Listing{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return count, nil
}

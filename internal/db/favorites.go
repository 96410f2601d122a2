package db

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// SaveFavorite records a favorite edge. Saving an existing edge updates its
// timestamp and sync flag.
func (db *DB) SaveFavorite(userID, listingID string, savedAt time.Time, synced bool) error {
	fav := models.Favorite{
		UserID:    userID,
		ListingID: listingID,
		SavedAt:   savedAt.UnixMilli(),
		Synced:    synced,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "listing_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"saved_at", "synced"}),
	}).Create(&fav).Error
	if err != nil {
		return fmt.Errorf("save favorite %s/%s: %w", userID, listingID, err)
	}
	return nil
}

// RemoveFavorite deletes a favorite edge. Removing a missing edge is not an error.
func (db *DB) RemoveFavorite(userID, listingID string) error {
	err := db.Where("user_id = ? AND listing_id = ?", userID, listingID).
		Delete(&models.Favorite{}).Error
	if err != nil {
		return fmt.Errorf("remove favorite %s/%s: %w", userID, listingID, err)
	}
	return nil
}

// HasFavorite checks if a user has favorited a listing.
func (db *DB) HasFavorite(userID, listingID string) (bool, error) {
	var count int64
	err := db.Model(&models.Favorite{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Count(&count).Error
	return count > 0, err
}

// GetFavorite returns a single favorite edge, or nil if absent.
func (db *DB) GetFavorite(userID, listingID string) (*models.Favorite, error) {
	var favs []models.Favorite
	err := db.Where("user_id = ? AND listing_id = ?", userID, listingID).
		Limit(1).Find(&favs).Error
	if err != nil {
		return nil, fmt.Errorf("get favorite: %w", err)
	}
	if len(favs) == 0 {
		return nil, nil
	}
	return &favs[0], nil
}

// GetFavoriteListings returns the cached listings a user has favorited,
// most recently saved first.
func (db *DB) GetFavoriteListings(userID string) ([]*models.Listing, error) {
	var listings []*models.Listing
	err := db.Model(&models.Listing{}).
		Joins("JOIN favorites f ON f.listing_id = listings.id").
		Where("f.user_id = ?", userID).
		Order("f.saved_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("get favorite listings: %w", err)
	}
	return listings, nil
}

// MarkFavoriteSynced flags a favorite edge as pushed to the remote store.
func (db *DB) MarkFavoriteSynced(userID, listingID string) error {
	err := db.Model(&models.Favorite{}).
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Update("synced", true).Error
	if err != nil {
		return fmt.Errorf("mark favorite synced: %w", err)
	}
	return nil
}

// ReplaceFavorites makes the synced favorites of a user match ids, the
// authoritative remote list. Unsynced local edges are kept since their
// mutations are still queued. Listings for ids must already be cached.
func (db *DB) ReplaceFavorites(userID string, ids []string, now time.Time) error {
	return db.Transaction(func(tx *DB) error {
		stale := tx.Where("user_id = ? AND synced = ?", userID, true)
		if len(ids) > 0 {
			stale = stale.Where("listing_id NOT IN ?", ids)
		}
		if err := stale.Delete(&models.Favorite{}).Error; err != nil {
			return fmt.Errorf("prune favorites: %w", err)
		}

		for _, id := range ids {
			fav := models.Favorite{UserID: userID, ListingID: id, SavedAt: now.UnixMilli(), Synced: true}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "listing_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"synced"}),
			}).Create(&fav).Error
			if err != nil {
				return fmt.Errorf("save favorite %s: %w", id, err)
			}
		}
		return nil
	})
}

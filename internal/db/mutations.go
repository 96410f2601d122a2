package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// EnqueueMutation appends a write to the mutation queue.
func (db *DB) EnqueueMutation(op models.Operation, collection, documentID string, payload map[string]interface{}) (*models.Mutation, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("enqueue mutation: unknown operation %q", op)
	}
	data, err := models.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	m := &models.Mutation{
		Operation:  op,
		Collection: collection,
		DocumentID: documentID,
		Data:       data,
		CreatedAt:  time.Now().UnixMilli(),
	}
	if err := db.Create(m).Error; err != nil {
		return nil, fmt.Errorf("enqueue mutation: %w", err)
	}
	return m, nil
}

// ListPendingMutations returns queued mutations in replay order.
func (db *DB) ListPendingMutations() ([]models.Mutation, error) {
	var items []models.Mutation
	if err := db.Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list pending mutations: %w", err)
	}
	return items, nil
}

// GetMutation returns a queued mutation by id, or nil if it is gone.
func (db *DB) GetMutation(id int64) (*models.Mutation, error) {
	var items []models.Mutation
	if err := db.Where("id = ?", id).Limit(1).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("get mutation %d: %w", id, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// RemoveMutation deletes a queued mutation.
func (db *DB) RemoveMutation(id int64) error {
	if err := db.Delete(&models.Mutation{}, id).Error; err != nil {
		return fmt.Errorf("remove mutation %d: %w", id, err)
	}
	return nil
}

// RecordMutationFailure increments the retry counter and stores the error.
func (db *DB) RecordMutationFailure(id int64, message string) error {
	result := db.Model(&models.Mutation{}).Where("id = ?", id).Updates(map[string]interface{}{
		"retry_count": gorm.Expr("retry_count + 1"),
		"last_error":  message,
	})
	if result.Error != nil {
		return fmt.Errorf("record mutation failure %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("record mutation failure %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountPendingMutations returns the queue depth.
func (db *DB) CountPendingMutations() (int64, error) {
	var count int64
	err := db.Model(&models.Mutation{}).Count(&count).Error
	return count, err
}

// HasPendingMutations reports whether any queued mutation targets the given
// document.
func (db *DB) HasPendingMutations(collection, documentID string) (bool, error) {
	var count int64
	err := db.Model(&models.Mutation{}).
		Where("collection = ? AND document_id = ?", collection, documentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count mutations for %s/%s: %w", collection, documentID, err)
	}
	return count > 0, nil
}

// RewriteMutationTarget points queued mutations at newID where they target
// listing oldID, either directly or through a favorite payload. It returns
// the number of rows changed.
func (db *DB) RewriteMutationTarget(oldID, newID string) (int64, error) {
	var changed int64
	err := db.Transaction(func(tx *DB) error {
		direct := tx.Model(&models.Mutation{}).
			Where("collection = ? AND document_id = ?", models.CollectionListings, oldID).
			Update("document_id", newID)
		if direct.Error != nil {
			return fmt.Errorf("rewrite mutation target: %w", direct.Error)
		}
		changed += direct.RowsAffected

		favs, err := tx.favoriteMutationsFor(oldID)
		if err != nil {
			return err
		}
		for _, m := range favs {
			payload, err := m.Payload()
			if err != nil {
				return err
			}
			payload[models.FieldListingID] = newID
			data, err := models.EncodePayload(payload)
			if err != nil {
				return err
			}
			if err := tx.Model(&models.Mutation{}).Where("id = ?", m.ID).Update("data", data).Error; err != nil {
				return fmt.Errorf("rewrite mutation %d: %w", m.ID, err)
			}
			changed++
		}
		return nil
	})
	return changed, err
}

// RemoveMutationsForDocument drops every queued mutation that targets
// listing id, including favorite toggles of it. Used when a listing that
// never reached the server is deleted.
func (db *DB) RemoveMutationsForDocument(id string) (int64, error) {
	var removed int64
	err := db.Transaction(func(tx *DB) error {
		direct := tx.Where("collection = ? AND document_id = ?", models.CollectionListings, id).
			Delete(&models.Mutation{})
		if direct.Error != nil {
			return fmt.Errorf("remove mutations for %s: %w", id, direct.Error)
		}
		removed += direct.RowsAffected

		favs, err := tx.favoriteMutationsFor(id)
		if err != nil {
			return err
		}
		for _, m := range favs {
			if err := tx.RemoveMutation(m.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// favoriteMutationsFor returns queued save/unsave mutations whose payload
// names listingID.
func (db *DB) favoriteMutationsFor(listingID string) ([]models.Mutation, error) {
	var candidates []models.Mutation
	err := db.Where("collection = ? AND operation IN ?", models.CollectionUsers,
		[]models.Operation{models.OpSave, models.OpUnsave}).
		Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("list favorite mutations: %w", err)
	}

	var out []models.Mutation
	for _, m := range candidates {
		payload, err := m.Payload()
		if err != nil {
			return nil, err
		}
		if id, _ := payload[models.FieldListingID].(string); id == listingID {
			out = append(out, m)
		}
	}
	return out, nil
}

package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

func TestMutationQueue_Order(t *testing.T) {
	db := testDB(t)

	ops := []models.Operation{models.OpCreate, models.OpUpdate, models.OpUpdateStatus, models.OpDelete}
	for _, op := range ops {
		_, err := db.EnqueueMutation(op, models.CollectionListings, "doc-1", map[string]interface{}{"n": 1})
		require.NoError(t, err)
	}

	items, err := db.ListPendingMutations()
	require.NoError(t, err)
	require.Len(t, items, len(ops))
	for i, item := range items {
		assert.Equal(t, ops[i], item.Operation)
		assert.Equal(t, 0, item.RetryCount)
		assert.NotZero(t, item.CreatedAt)
		if i > 0 {
			assert.Greater(t, item.ID, items[i-1].ID)
		}
	}

	count, err := db.CountPendingMutations()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestEnqueueMutation_UnknownOperation(t *testing.T) {
	db := testDB(t)
	_, err := db.EnqueueMutation("upsert", models.CollectionListings, "x", nil)
	assert.Error(t, err)
}

func TestEnqueueMutation_Payload(t *testing.T) {
	db := testDB(t)

	m, err := db.EnqueueMutation(models.OpCreate, models.CollectionListings, "temp_1", map[string]interface{}{
		models.FieldName:     "Kos",
		models.FieldPriceMin: int64(500000),
	})
	require.NoError(t, err)

	stored, err := db.GetMutation(m.ID)
	require.NoError(t, err)
	payload, err := stored.Payload()
	require.NoError(t, err)
	assert.Equal(t, "Kos", payload[models.FieldName])
	assert.Equal(t, int64(500000), payload[models.FieldPriceMin])
}

func TestRecordMutationFailure(t *testing.T) {
	db := testDB(t)

	m, err := db.EnqueueMutation(models.OpDelete, models.CollectionListings, "a", nil)
	require.NoError(t, err)

	require.NoError(t, db.RecordMutationFailure(m.ID, "unavailable"))
	require.NoError(t, db.RecordMutationFailure(m.ID, "timeout"))

	got, err := db.GetMutation(m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "timeout", got.LastError)

	err = db.RecordMutationFailure(9999, "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemoveMutation(t *testing.T) {
	db := testDB(t)

	m, err := db.EnqueueMutation(models.OpDelete, models.CollectionListings, "a", nil)
	require.NoError(t, err)
	require.NoError(t, db.RemoveMutation(m.ID))

	got, err := db.GetMutation(m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRewriteMutationTarget(t *testing.T) {
	db := testDB(t)

	_, err := db.EnqueueMutation(models.OpUpdate, models.CollectionListings, "temp_1", map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	_, err = db.EnqueueMutation(models.OpSave, models.CollectionUsers, "u1", map[string]interface{}{models.FieldListingID: "temp_1"})
	require.NoError(t, err)
	_, err = db.EnqueueMutation(models.OpSave, models.CollectionUsers, "u1", map[string]interface{}{models.FieldListingID: "other"})
	require.NoError(t, err)

	changed, err := db.RewriteMutationTarget("temp_1", "srv-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	items, err := db.ListPendingMutations()
	require.NoError(t, err)
	assert.Equal(t, "srv-1", items[0].DocumentID)

	saved, err := items[1].Payload()
	require.NoError(t, err)
	assert.Equal(t, "srv-1", saved[models.FieldListingID])
	assert.Equal(t, "u1", items[1].DocumentID)

	untouched, err := items[2].Payload()
	require.NoError(t, err)
	assert.Equal(t, "other", untouched[models.FieldListingID])
}

func TestRemoveMutationsForDocument(t *testing.T) {
	db := testDB(t)

	_, err := db.EnqueueMutation(models.OpCreate, models.CollectionListings, "temp_1", map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	_, err = db.EnqueueMutation(models.OpSave, models.CollectionUsers, "u1", map[string]interface{}{models.FieldListingID: "temp_1"})
	require.NoError(t, err)
	keep, err := db.EnqueueMutation(models.OpDelete, models.CollectionListings, "srv-9", nil)
	require.NoError(t, err)

	removed, err := db.RemoveMutationsForDocument("temp_1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	items, err := db.ListPendingMutations()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.ID, items[0].ID)
}

func TestHasPendingMutations(t *testing.T) {
	db := testDB(t)

	has, err := db.HasPendingMutations(models.CollectionUsers, "user-1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = db.EnqueueMutation(models.OpSave, models.CollectionUsers, "user-1", map[string]interface{}{models.FieldListingID: "kos-1"})
	require.NoError(t, err)

	has, err = db.HasPendingMutations(models.CollectionUsers, "user-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = db.HasPendingMutations(models.CollectionListings, "user-1")
	require.NoError(t, err)
	assert.False(t, has)
}

package remote_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
	"github.com/m4mayz/MauNgekos-sub000/internal/remote/memory"
)

func putListing(s *memory.Store, id string, status, previous models.ListingStatus, createdAt int64) {
	l := &models.Listing{
		ID: id, OwnerID: "owner-1", Name: "Kos " + id, Type: models.TypeMixed,
		Status: status, PreviousStatus: previous, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	s.Put(models.CollectionListings, id, l.ToDocument())
}

func listingIDs(ls []*models.Listing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func seedWorkingSet(s *memory.Store) {
	putListing(s, "approved-old", models.StatusApproved, "", 1000)
	putListing(s, "approved-new", models.StatusApproved, "", 3000)
	putListing(s, "rereview", models.StatusPending, models.StatusApproved, 2000)
	putListing(s, "pending", models.StatusPending, "", 4000)
	putListing(s, "rejected", models.StatusRejected, models.StatusApproved, 5000)
}

func TestApprovedWorkingSet(t *testing.T) {
	s := memory.New()
	seedWorkingSet(s)
	repo := remote.NewListings(s, nil)

	got, err := repo.ApprovedWorkingSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"approved-new", "rereview", "approved-old"}, listingIDs(got))
	assert.Len(t, s.CallsOf("query"), 2)
}

func TestApprovedWorkingSet_IndexFallback(t *testing.T) {
	s := memory.New()
	seedWorkingSet(s)
	s.SetIndexMissing(true)
	repo := remote.NewListings(s, nil)

	got, err := repo.ApprovedWorkingSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"approved-new", "rereview", "approved-old"}, listingIDs(got))

	// approved query, failed compound query, pending-only fallback
	assert.Len(t, s.CallsOf("query"), 3)
}

func TestApprovedWorkingSet_Error(t *testing.T) {
	s := memory.New()
	seedWorkingSet(s)
	s.FailWhen(func(c memory.Call) error {
		if c.Method == "query" && len(c.Where) == 1 {
			return remote.ErrUnavailable
		}
		return nil
	})

	_, err := remote.NewListings(s, nil).ApprovedWorkingSet(context.Background())
	assert.True(t, errors.Is(err, remote.ErrUnavailable))
}

func TestListings_Writes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.UnixMilli(1700000000000)
	s.SetClock(func() time.Time { return now })
	repo := remote.NewListings(s, nil)

	l := &models.Listing{OwnerID: "o1", Name: "Kos", Type: models.TypeMale, Status: models.StatusPending,
		Facilities: models.StringList{"wifi"}}
	id, err := repo.Create(ctx, l.ToDocument())
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, now.UnixMilli(), got.CreatedAt)
	assert.Equal(t, models.StringList{"wifi"}, got.Facilities)

	now = now.Add(time.Minute)
	require.NoError(t, repo.Update(ctx, id, models.StatusPatch(models.StatusApproved).Document()))
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, now.UnixMilli(), got.UpdatedAt)
	assert.NotEqual(t, got.CreatedAt, got.UpdatedAt)

	mine, err := repo.ByOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	approved, err := repo.ByStatus(ctx, models.StatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Get(ctx, id)
	assert.True(t, errors.Is(err, remote.ErrNotFound))
}

func TestListings_Favorites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	repo := remote.NewListings(s, nil)

	ids, err := repo.FavoriteIDs(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)

	s.Put(models.CollectionUsers, "u1", map[string]interface{}{"name": "Ani"})
	require.NoError(t, repo.AddFavorite(ctx, "u1", "a"))
	require.NoError(t, repo.AddFavorite(ctx, "u1", "b"))
	require.NoError(t, repo.AddFavorite(ctx, "u1", "a"))
	require.NoError(t, repo.RemoveFavorite(ctx, "u1", "b"))

	ids, err = repo.FavoriteIDs(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, remote.IsTransient(remote.ErrUnavailable))
	assert.True(t, remote.IsTransient(context.DeadlineExceeded))
	assert.False(t, remote.IsTransient(remote.ErrNotFound))
	assert.False(t, remote.IsTransient(nil))
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListing_DocumentRoundTrip(t *testing.T) {
	orig := sampleListing()
	orig.PreviousStatus = StatusApproved

	doc := orig.ToDocument()
	_, hasID := doc["id"]
	assert.False(t, hasID)
	assert.IsType(t, time.Time{}, doc[FieldCreatedAt])

	back, err := ListingFromDocument(orig.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, orig, back)
}

func TestListingFromDocument_NumericTimestamps(t *testing.T) {
	doc := map[string]interface{}{
		FieldName:           "Kos",
		FieldCreatedAt:      float64(1700000000123),
		FieldUpdatedAt:      int64(1700000000456),
		FieldTotalRooms:     float64(4),
		FieldAvailableRooms: 2,
		FieldFacilities:     []interface{}{"wifi", "ac"},
	}

	l, err := ListingFromDocument("x", doc)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), l.CreatedAt)
	assert.Equal(t, int64(1700000000456), l.UpdatedAt)
	assert.Equal(t, 4, l.TotalRooms)
	assert.Equal(t, 2, l.AvailableRooms)
	assert.Equal(t, StringList{"wifi", "ac"}, l.Facilities)
}

func TestListingFromDocument_BadTypes(t *testing.T) {
	_, err := ListingFromDocument("x", map[string]interface{}{FieldPriceMin: "cheap"})
	assert.ErrorContains(t, err, FieldPriceMin)

	_, err = ListingFromDocument("x", map[string]interface{}{FieldImages: []interface{}{1}})
	assert.ErrorContains(t, err, FieldImages)

	_, err = ListingFromDocument("x", map[string]interface{}{FieldTotalRooms: 1.5})
	assert.Error(t, err)
}

func TestFavoriteIDsFromDocument(t *testing.T) {
	ids, err := FavoriteIDsFromDocument(map[string]interface{}{
		FieldFavorites: []interface{}{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = FavoriteIDsFromDocument(map[string]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListingPatch(t *testing.T) {
	name := "Kos Mawar"
	avail := 1
	facilities := StringList{"wifi"}
	p := ListingPatch{Name: &name, AvailableRooms: &avail, Facilities: &facilities}

	assert.False(t, p.IsEmpty())
	assert.True(t, ListingPatch{}.IsEmpty())

	assert.Equal(t, map[string]interface{}{
		"name":            "Kos Mawar",
		"available_rooms": int64(1),
		"facilities":      StringList{"wifi"},
	}, p.Columns())

	doc := p.Document()
	assert.Equal(t, map[string]interface{}{
		FieldName:           "Kos Mawar",
		FieldAvailableRooms: int64(1),
		FieldFacilities:     []string{"wifi"},
	}, doc)

	l := sampleListing()
	p.Apply(l)
	assert.Equal(t, "Kos Mawar", l.Name)
	assert.Equal(t, 1, l.AvailableRooms)
	assert.Equal(t, StringList{"wifi"}, l.Facilities)
	assert.Equal(t, int64(500000), l.PriceMin)
}

func TestStatusPatch(t *testing.T) {
	p := StatusPatch(StatusApproved)
	require.NotNil(t, p.PreviousStatus)
	assert.Equal(t, ListingStatus(""), *p.PreviousStatus)

	p = StatusPatch(StatusPending)
	assert.Nil(t, p.PreviousStatus)
}

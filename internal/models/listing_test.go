package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleListing() *Listing {
	return &Listing{
		ID:             "kos-1",
		OwnerID:        "owner-1",
		Name:           "Kos Melati",
		Address:        "Jl. Melati 3",
		Description:    "Dekat kampus",
		OwnerName:      "Bu Sri",
		OwnerPhone:     "08123",
		Latitude:       -6.2,
		Longitude:      106.8166,
		Type:           TypeFemale,
		PriceMin:       500000,
		PriceMax:       800000,
		TotalRooms:     10,
		AvailableRooms: 3,
		Facilities:     StringList{"wifi", "ac", "parkir"},
		Images:         StringList{"a.jpg", "b.jpg"},
		Status:         StatusApproved,
		CreatedAt:      1700000000123,
		UpdatedAt:      1700000500456,
	}
}

func TestListing_TableName(t *testing.T) {
	assert.Equal(t, "listings", Listing{}.TableName())
}

func TestTempID(t *testing.T) {
	now := time.UnixMilli(1700000000999)
	id := NewTempID(now)

	assert.Equal(t, "temp_1700000000999", id)
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("abc123"))
	assert.True(t, strings.HasPrefix(id, TempIDPrefix))
}

func TestListing_Visible(t *testing.T) {
	tests := []struct {
		name     string
		status   ListingStatus
		previous ListingStatus
		want     bool
	}{
		{"approved", StatusApproved, "", true},
		{"pending re-review", StatusPending, StatusApproved, true},
		{"pending new", StatusPending, "", false},
		{"pending after rejection", StatusPending, StatusRejected, false},
		{"rejected", StatusRejected, StatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &Listing{Status: tt.status, PreviousStatus: tt.previous}
			assert.Equal(t, tt.want, l.Visible())
		})
	}
}

func TestListing_Clone(t *testing.T) {
	orig := sampleListing()
	c := orig.Clone()
	c.Facilities[0] = "changed"
	c.Images = append(c.Images, "c.jpg")

	assert.Equal(t, "wifi", orig.Facilities[0])
	assert.Len(t, orig.Images, 2)
}

func TestListingFilter_Matches(t *testing.T) {
	cheap := &Listing{PriceMin: 500000, PriceMax: 800000, Type: TypeMale, AvailableRooms: 2,
		Facilities: StringList{"wifi", "ac"}}
	pricey := &Listing{PriceMin: 900000, PriceMax: 1200000, Type: TypeMixed, AvailableRooms: 0,
		Facilities: StringList{"wifi"}}

	tests := []struct {
		name   string
		filter ListingFilter
		cheap  bool
		pricey bool
	}{
		{"empty filter", ListingFilter{}, true, true},
		{"min price overlap", ListingFilter{PriceMin: 700000}, true, true},
		{"min price excludes cheap", ListingFilter{PriceMin: 850000}, false, true},
		{"max price excludes pricey", ListingFilter{PriceMax: 850000}, true, false},
		{"type", ListingFilter{Type: TypeMixed}, false, true},
		{"available only", ListingFilter{AvailableOnly: true}, true, false},
		{"facilities all of", ListingFilter{Facilities: []string{"wifi", "ac"}}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.cheap, tt.filter.Matches(cheap))
			assert.Equal(t, tt.pricey, tt.filter.Matches(pricey))
		})
	}
}

func TestStringList_ValueScan(t *testing.T) {
	list := StringList{"b", "a", "a", "kamar mandi dalam"}
	v, err := list.Value()
	require.NoError(t, err)

	var out StringList
	require.NoError(t, out.Scan(v))
	assert.Equal(t, list, out)

	require.NoError(t, out.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringList{"x"}, out)
}

func TestStringList_Empty(t *testing.T) {
	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	out := StringList{"stale"}
	require.NoError(t, out.Scan("[]"))
	assert.Nil(t, out)

	out = StringList{"stale"}
	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)

	assert.Error(t, out.Scan(42))
}

// Package models defines the core data structures for the listing cache.
package models

import (
	"strconv"
	"strings"
	"time"
)

// ListingStatus is the moderation lifecycle state of a listing.
type ListingStatus string

const (
	StatusPending  ListingStatus = "pending"
	StatusApproved ListingStatus = "approved"
	StatusRejected ListingStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ListingType is the occupancy kind of a listing.
type ListingType string

const (
	TypeMale   ListingType = "putra"
	TypeFemale ListingType = "putri"
	TypeMixed  ListingType = "campur"
)

// ValidTypes returns all listing kinds.
func ValidTypes() []ListingType {
	return []ListingType{TypeMale, TypeFemale, TypeMixed}
}

// TempIDPrefix marks ids generated locally for listings created offline.
const TempIDPrefix = "temp_"

// NewTempID returns a local id for a listing that has not reached the server yet.
func NewTempID(now time.Time) string {
	return TempIDPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Listing is a cached boarding-house listing.
// All timestamps are Unix milliseconds; SyncedAt is local-only and is zero
// until the row has been refreshed from the remote store.
type Listing struct {
	ID      string `gorm:"primaryKey;size:128" json:"id"`
	OwnerID string `gorm:"size:128;index" json:"ownerId" validate:"required"`

	// Descriptive fields
	Name        string `gorm:"size:255" json:"name" validate:"required"`
	Address     string `gorm:"type:text" json:"address"`
	Description string `gorm:"type:text" json:"description"`
	OwnerName   string `gorm:"size:255" json:"ownerName"`
	OwnerPhone  string `gorm:"size:64" json:"ownerPhone"`

	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`

	Type ListingType `gorm:"size:20;index" json:"type" validate:"listingtype"`

	PriceMin int64 `gorm:"index" json:"priceMin" validate:"gte=0"`
	PriceMax int64 `gorm:"index" json:"priceMax" validate:"gtefield=PriceMin"`

	TotalRooms     int `json:"totalRooms" validate:"gte=0"`
	AvailableRooms int `gorm:"index" json:"availableRooms" validate:"gte=0,ltefield=TotalRooms"`

	Facilities StringList `gorm:"type:text" json:"facilities"`
	Images     StringList `gorm:"type:text" json:"images"`

	Status         ListingStatus `gorm:"size:20;index;default:pending" json:"status" validate:"oneof=pending approved rejected"`
	PreviousStatus ListingStatus `gorm:"size:20" json:"previousStatus,omitempty" validate:"omitempty,oneof=pending approved rejected"`

	CreatedAt int64 `gorm:"autoCreateTime:false;index" json:"createdAt"`
	UpdatedAt int64 `gorm:"autoUpdateTime:false" json:"updatedAt"`
	SyncedAt  int64 `gorm:"default:0" json:"syncedAt,omitempty"`
}

// TableName specifies the table name for GORM.
func (Listing) TableName() string {
	return "listings"
}

// Visible reports whether the listing belongs to the approved working set:
// approved, or pending re-review after having been approved.
func (l *Listing) Visible() bool {
	return l.Status == StatusApproved ||
		(l.Status == StatusPending && l.PreviousStatus == StatusApproved)
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	c := *l
	c.Facilities = l.Facilities.Clone()
	c.Images = l.Images.Clone()
	return &c
}

// ListingFilter narrows a listing query. Zero values disable a predicate.
type ListingFilter struct {
	// PriceMin keeps listings whose upper price bound reaches it.
	PriceMin int64
	// PriceMax keeps listings whose lower price bound does not exceed it.
	PriceMax int64

	Type          ListingType
	AvailableOnly bool

	// Facilities must all be present on a listing.
	Facilities []string
}

// Matches applies the filter to a single listing. It mirrors the SQL built
// by the local store so remote results can be filtered client-side.
func (f ListingFilter) Matches(l *Listing) bool {
	if f.PriceMin > 0 && l.PriceMax < f.PriceMin {
		return false
	}
	if f.PriceMax > 0 && l.PriceMin > f.PriceMax {
		return false
	}
	if f.Type != "" && l.Type != f.Type {
		return false
	}
	if f.AvailableOnly && l.AvailableRooms <= 0 {
		return false
	}
	for _, want := range f.Facilities {
		if !l.Facilities.Contains(want) {
			return false
		}
	}
	return true
}

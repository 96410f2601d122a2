package testutil

import (
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

// Listing returns a valid listing fixture.
func Listing(id string, status models.ListingStatus, createdAt int64) *models.Listing {
	return &models.Listing{
		ID:             id,
		OwnerID:        "owner-1",
		Name:           "Kos " + id,
		Address:        "Jl. Kenanga 1",
		Type:           models.TypeMixed,
		PriceMin:       500000,
		PriceMax:       800000,
		TotalRooms:     5,
		AvailableRooms: 2,
		Facilities:     models.StringList{"wifi"},
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

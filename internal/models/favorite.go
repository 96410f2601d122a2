package models

// Favorite is a user's bookmark on a listing. Synced is false until the edge
// has been pushed to the remote user document.
type Favorite struct {
	UserID    string   `gorm:"primaryKey;size:128" json:"userId"`
	ListingID string   `gorm:"primaryKey;size:128;index" json:"listingId"`
	Listing   *Listing `gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	SavedAt   int64    `gorm:"autoCreateTime:false" json:"savedAt"`
	Synced    bool     `gorm:"not null;default:false" json:"synced"`
}

// TableName specifies the table name for GORM.
func (Favorite) TableName() string {
	return "favorites"
}

const (
	// FieldFavorites is the user document array of favorite listing ids.
	FieldFavorites = "favorites"
	// FieldListingID names the listing in queued favorite payloads.
	FieldListingID = "listingId"
)

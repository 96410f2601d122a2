package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Remote document field names for listings.
const (
	FieldOwnerID        = "ownerId"
	FieldName           = "name"
	FieldAddress        = "address"
	FieldDescription    = "description"
	FieldOwnerName      = "ownerName"
	FieldOwnerPhone     = "ownerPhone"
	FieldLatitude       = "latitude"
	FieldLongitude      = "longitude"
	FieldType           = "type"
	FieldPriceMin       = "priceMin"
	FieldPriceMax       = "priceMax"
	FieldTotalRooms     = "totalRooms"
	FieldAvailableRooms = "availableRooms"
	FieldFacilities     = "facilities"
	FieldImages         = "images"
	FieldStatus         = "status"
	FieldPreviousStatus = "previousStatus"
	FieldCreatedAt      = "createdAt"
	FieldUpdatedAt      = "updatedAt"
)

// ToDocument maps the listing onto remote document fields. The id is not
// part of the document body and SyncedAt never leaves the device.
func (l *Listing) ToDocument() map[string]interface{} {
	doc := map[string]interface{}{
		FieldOwnerID:        l.OwnerID,
		FieldName:           l.Name,
		FieldAddress:        l.Address,
		FieldDescription:    l.Description,
		FieldOwnerName:      l.OwnerName,
		FieldOwnerPhone:     l.OwnerPhone,
		FieldLatitude:       l.Latitude,
		FieldLongitude:      l.Longitude,
		FieldType:           string(l.Type),
		FieldPriceMin:       l.PriceMin,
		FieldPriceMax:       l.PriceMax,
		FieldTotalRooms:     int64(l.TotalRooms),
		FieldAvailableRooms: int64(l.AvailableRooms),
		FieldFacilities:     []string(l.Facilities.Clone()),
		FieldImages:         []string(l.Images.Clone()),
		FieldStatus:         string(l.Status),
		FieldPreviousStatus: string(l.PreviousStatus),
	}
	if l.CreatedAt != 0 {
		doc[FieldCreatedAt] = time.UnixMilli(l.CreatedAt).UTC()
	}
	if l.UpdatedAt != 0 {
		doc[FieldUpdatedAt] = time.UnixMilli(l.UpdatedAt).UTC()
	}
	return doc
}

// ListingFromDocument builds a listing from a remote document. Timestamps
// may arrive as time.Time or as millisecond numbers.
func ListingFromDocument(id string, data map[string]interface{}) (*Listing, error) {
	l := &Listing{ID: id}
	var err error

	l.OwnerID = asString(data[FieldOwnerID])
	l.Name = asString(data[FieldName])
	l.Address = asString(data[FieldAddress])
	l.Description = asString(data[FieldDescription])
	l.OwnerName = asString(data[FieldOwnerName])
	l.OwnerPhone = asString(data[FieldOwnerPhone])
	l.Type = ListingType(asString(data[FieldType]))
	l.Status = ListingStatus(asString(data[FieldStatus]))
	l.PreviousStatus = ListingStatus(asString(data[FieldPreviousStatus]))

	if l.Latitude, err = asFloat(data[FieldLatitude]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldLatitude, err)
	}
	if l.Longitude, err = asFloat(data[FieldLongitude]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldLongitude, err)
	}
	if l.PriceMin, err = asInt64(data[FieldPriceMin]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldPriceMin, err)
	}
	if l.PriceMax, err = asInt64(data[FieldPriceMax]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldPriceMax, err)
	}

	total, err := asInt64(data[FieldTotalRooms])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldTotalRooms, err)
	}
	l.TotalRooms = int(total)
	available, err := asInt64(data[FieldAvailableRooms])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldAvailableRooms, err)
	}
	l.AvailableRooms = int(available)

	if l.Facilities, err = asStrings(data[FieldFacilities]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldFacilities, err)
	}
	if l.Images, err = asStrings(data[FieldImages]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldImages, err)
	}

	if l.CreatedAt, err = asMillis(data[FieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldCreatedAt, err)
	}
	if l.UpdatedAt, err = asMillis(data[FieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("%s: %w", FieldUpdatedAt, err)
	}

	return l, nil
}

// FavoriteIDsFromDocument reads the favorite listing ids from a user document.
func FavoriteIDsFromDocument(data map[string]interface{}) ([]string, error) {
	ids, err := asStrings(data[FieldFavorites])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldFavorites, err)
	}
	return ids, nil
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("non-integral value %v", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func asStrings(v interface{}) (StringList, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
		return StringList(t).Clone(), nil
	case StringList:
		if len(t) == 0 {
			return nil, nil
		}
		return t.Clone(), nil
	case []interface{}:
		if len(t) == 0 {
			return nil, nil
		}
		out := make(StringList, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected element type %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected type %T", v)
}

func asMillis(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case time.Time:
		if t.IsZero() {
			return 0, nil
		}
		return t.UnixMilli(), nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return 0, nil
		}
		return t.UnixMilli(), nil
	}
	return asInt64(v)
}

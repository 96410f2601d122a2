package models

// ListingPatch is a partial listing update. Nil fields are left untouched.
type ListingPatch struct {
	Name        *string
	Address     *string
	Description *string
	OwnerName   *string
	OwnerPhone  *string

	Latitude  *float64
	Longitude *float64

	Type *ListingType

	PriceMin *int64
	PriceMax *int64

	TotalRooms     *int
	AvailableRooms *int

	Facilities *StringList
	Images     *StringList

	Status         *ListingStatus
	PreviousStatus *ListingStatus
}

// StatusPatch returns a patch that moves a listing to status. Approving or
// rejecting ends any re-review, so previousStatus is cleared.
func StatusPatch(status ListingStatus) ListingPatch {
	p := ListingPatch{Status: &status}
	if status == StatusApproved || status == StatusRejected {
		cleared := ListingStatus("")
		p.PreviousStatus = &cleared
	}
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (p ListingPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// Apply writes the patch onto l.
func (p ListingPatch) Apply(l *Listing) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Address != nil {
		l.Address = *p.Address
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.OwnerName != nil {
		l.OwnerName = *p.OwnerName
	}
	if p.OwnerPhone != nil {
		l.OwnerPhone = *p.OwnerPhone
	}
	if p.Latitude != nil {
		l.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		l.Longitude = *p.Longitude
	}
	if p.Type != nil {
		l.Type = *p.Type
	}
	if p.PriceMin != nil {
		l.PriceMin = *p.PriceMin
	}
	if p.PriceMax != nil {
		l.PriceMax = *p.PriceMax
	}
	if p.TotalRooms != nil {
		l.TotalRooms = *p.TotalRooms
	}
	if p.AvailableRooms != nil {
		l.AvailableRooms = *p.AvailableRooms
	}
	if p.Facilities != nil {
		l.Facilities = p.Facilities.Clone()
	}
	if p.Images != nil {
		l.Images = p.Images.Clone()
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.PreviousStatus != nil {
		l.PreviousStatus = *p.PreviousStatus
	}
}

// Columns returns the patch as local column assignments.
func (p ListingPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	p.each(func(field, column string, v interface{}) {
		cols[column] = v
	})
	return cols
}

// Document returns the patch as remote document fields.
func (p ListingPatch) Document() map[string]interface{} {
	doc := map[string]interface{}{}
	p.each(func(field, column string, v interface{}) {
		if l, ok := v.(StringList); ok {
			list := []string(l.Clone())
			if list == nil {
				list = []string{}
			}
			v = list
		}
		doc[field] = v
	})
	return doc
}

func (p ListingPatch) each(fn func(field, column string, v interface{})) {
	if p.Name != nil {
		fn(FieldName, "name", *p.Name)
	}
	if p.Address != nil {
		fn(FieldAddress, "address", *p.Address)
	}
	if p.Description != nil {
		fn(FieldDescription, "description", *p.Description)
	}
	if p.OwnerName != nil {
		fn(FieldOwnerName, "owner_name", *p.OwnerName)
	}
	if p.OwnerPhone != nil {
		fn(FieldOwnerPhone, "owner_phone", *p.OwnerPhone)
	}
	if p.Latitude != nil {
		fn(FieldLatitude, "latitude", *p.Latitude)
	}
	if p.Longitude != nil {
		fn(FieldLongitude, "longitude", *p.Longitude)
	}
	if p.Type != nil {
		fn(FieldType, "type", string(*p.Type))
	}
	if p.PriceMin != nil {
		fn(FieldPriceMin, "price_min", *p.PriceMin)
	}
	if p.PriceMax != nil {
		fn(FieldPriceMax, "price_max", *p.PriceMax)
	}
	if p.TotalRooms != nil {
		fn(FieldTotalRooms, "total_rooms", int64(*p.TotalRooms))
	}
	if p.AvailableRooms != nil {
		fn(FieldAvailableRooms, "available_rooms", int64(*p.AvailableRooms))
	}
	if p.Facilities != nil {
		fn(FieldFacilities, "facilities", p.Facilities.Clone())
	}
	if p.Images != nil {
		fn(FieldImages, "images", p.Images.Clone())
	}
	if p.Status != nil {
		fn(FieldStatus, "status", string(*p.Status))
	}
	if p.PreviousStatus != nil {
		fn(FieldPreviousStatus, "previous_status", string(*p.PreviousStatus))
	}
}

package telemetry

import (
	"github.com/google/uuid"

	"github.com/m4mayz/MauNgekos-sub000/internal/kv"
)

const trackingIDKey = "tracking_id"

// KVTrackingID persists the anonymous tracking id in the kv store.
type KVTrackingID struct {
	Store *kv.Store
}

// GetOrCreateTrackingID implements TrackingIDProvider. When the id cannot
// be persisted, a fresh per-session id is returned.
func (p KVTrackingID) GetOrCreateTrackingID() string {
	var id string
	if ok, err := p.Store.Get(trackingIDKey, &id); ok && err == nil && id != "" {
		return id
	}
	id = uuid.New().String()
	_ = p.Store.Set(trackingIDKey, id)
	return id
}

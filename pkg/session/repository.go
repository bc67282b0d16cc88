package session

import "context"

// MarkerRepository persists login markers. LoadMarker returns
// serviceerr.ErrNotFound for an unknown or expired marker.
type MarkerRepository interface {
	LoadMarker(ctx context.Context, markerID string) (Marker, error)
	StoreMarker(ctx context.Context, marker Marker) error
	DeleteMarker(ctx context.Context, markerID string) error
}

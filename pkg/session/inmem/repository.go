package sessioninmem

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

const cleanupInterval = time.Minute

// Repository keeps markers in process memory. Markers expire with the
// refresh credential they stand for.
type Repository struct {
	cache *cache.Cache
}

var _ = session.MarkerRepository(&Repository{})

func NewRepository() *Repository {
	return &Repository{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (r *Repository) LoadMarker(_ context.Context, markerID string) (session.Marker, error) {
	v, ok := r.cache.Get(markerID)
	if !ok {
		return session.Marker{}, serviceerr.ErrNotFound
	}

	return v.(session.Marker), nil //nolint:forcetypeassert
}

func (r *Repository) StoreMarker(_ context.Context, marker session.Marker) error {
	ttl := cache.NoExpiration
	if !marker.Expiry.IsZero() {
		ttl = time.Until(marker.Expiry)
		if ttl <= 0 {
			r.cache.Delete(marker.ID)
			return nil
		}
	}

	r.cache.Set(marker.ID, marker, ttl)

	return nil
}

func (r *Repository) DeleteMarker(_ context.Context, markerID string) error {
	r.cache.Delete(markerID)
	return nil
}

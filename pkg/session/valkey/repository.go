package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/session-client/pkg/session"
)

type ObjectType string

const objectTypeMarker ObjectType = "marker"

var (
	ErrGetMarker   = errors.New("getting marker from store")
	ErrStoreMarker = errors.New("setting marker into storage")
)

// Repository keeps markers in valkey under <prefix>:marker:<id>.
type Repository struct {
	store *store
}

var _ = session.MarkerRepository(&Repository{})

func NewRepository(valkeyClient valkey.Client, prefix string) *Repository {
	return &Repository{
		store: newStore(valkeyClient, prefix),
	}
}

func (r *Repository) LoadMarker(ctx context.Context, markerID string) (session.Marker, error) {
	var marker session.Marker
	if err := r.store.Get(ctx, objectTypeMarker, markerID, &marker); err != nil {
		return session.Marker{}, errors.Join(ErrGetMarker, err)
	}

	return marker, nil
}

func (r *Repository) StoreMarker(ctx context.Context, marker session.Marker) error {
	var ttl time.Duration
	if !marker.Expiry.IsZero() {
		ttl = time.Until(marker.Expiry)
		if ttl <= 0 {
			return r.DeleteMarker(ctx, marker.ID)
		}
	}

	if err := r.store.Set(ctx, objectTypeMarker, marker.ID, marker, ttl); err != nil {
		return errors.Join(ErrStoreMarker, err)
	}

	return nil
}

func (r *Repository) DeleteMarker(ctx context.Context, markerID string) error {
	if err := r.store.Destroy(ctx, objectTypeMarker, markerID); err != nil {
		return fmt.Errorf("deleting marker from store: %w", err)
	}

	return nil
}

package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/session-client/internal/serviceerr"
	"github.com/openkcm/session-client/pkg/session"
)

type Repository struct {
	mu      sync.Mutex
	Markers map[string]session.Marker

	loadErr, storeErr, deleteErr error

	Deleted []string
}

var _ = session.MarkerRepository(&Repository{})

type RepositoryOption func(*Repository)

func WithMarker(marker session.Marker) RepositoryOption {
	return func(r *Repository) {
		r.Markers[marker.ID] = marker
	}
}

func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) {
		r.loadErr = err
	}
}

func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) {
		r.storeErr = err
	}
}

func WithDeleteError(err error) RepositoryOption {
	return func(r *Repository) {
		r.deleteErr = err
	}
}

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		Markers: make(map[string]session.Marker),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Repository) LoadMarker(_ context.Context, markerID string) (session.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return session.Marker{}, r.loadErr
	}

	if m, ok := r.Markers[markerID]; ok {
		return m, nil
	}

	return session.Marker{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreMarker(_ context.Context, marker session.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return r.storeErr
	}

	r.Markers[marker.ID] = marker
	return nil
}

func (r *Repository) DeleteMarker(_ context.Context, markerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	r.Deleted = append(r.Deleted, markerID)
	delete(r.Markers, markerID)
	return nil
}

// Marker returns a stored marker and whether it exists.
func (r *Repository) Marker(markerID string) (session.Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.Markers[markerID]
	return m, ok
}

// DeletedIDs returns the ids passed to DeleteMarker, in call order.
func (r *Repository) DeletedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.Deleted))
	copy(out, r.Deleted)
	return out
}

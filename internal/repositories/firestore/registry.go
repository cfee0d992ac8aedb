package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	catalog  *CatalogRepository
	media    *MediaRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on provider. health may be nil when readiness
// probes are not wired.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository, clock func() time.Time) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}
	catalog, err := NewCatalogRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	media, err := NewMediaRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, catalog: catalog, media: media, health: health}, nil
}

func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }

func (r *Registry) Media() repositories.MediaRepository { return r.media }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

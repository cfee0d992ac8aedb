package repositories

import (
	"context"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Media() MediaRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository persists items keyed by their normalised name.
type CatalogRepository interface {
	// List returns every item in first-seen order.
	List(ctx context.Context) ([]domain.Item, error)
	// Find loads one item; a missing item yields a RepositoryError with IsNotFound.
	Find(ctx context.Context, name string) (domain.Item, error)
	// Upsert applies update onto the stored item with the same name, or creates it at
	// position when absent. The stored result is returned with created set for new items.
	Upsert(ctx context.Context, update domain.Item, position int64) (item domain.Item, created bool, err error)
	// UpdateRequests replaces the request phrases of an existing item.
	UpdateRequests(ctx context.Context, name string, requests []string) (domain.Item, error)
}

// MediaRepository records which media keys have been produced and where they live.
type MediaRepository interface {
	Record(ctx context.Context, asset domain.MediaAsset) error
	Find(ctx context.Context, key domain.MediaKey) (domain.MediaAsset, error)
	List(ctx context.Context) ([]domain.MediaAsset, error)
}

// HealthRepository exposes dependency health information for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

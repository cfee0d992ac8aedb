package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

const itemsCollection = "items"

type itemDocument struct {
	Name           string    `firestore:"name"`
	NormalizedName string    `firestore:"normalizedName"`
	Category       string    `firestore:"category"`
	Subcategory    string    `firestore:"subcategory"`
	Requests       []string  `firestore:"requests"`
	Position       int64     `firestore:"position"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// CatalogRepository stores catalog items, one document per normalised item name.
type CatalogRepository struct {
	provider *pfirestore.Provider
	items    *pfirestore.Collection[itemDocument]
	clock    func() time.Time
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider, clock func() time.Time) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository: firestore provider is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CatalogRepository{
		provider: provider,
		items:    pfirestore.NewCollection[itemDocument](provider, itemsCollection),
		clock:    clock,
	}, nil
}

// List returns all items ordered by first appearance.
func (r *CatalogRepository) List(ctx context.Context) ([]domain.Item, error) {
	if r == nil || r.items == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("position", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	items := make([]domain.Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeItem(doc.Data))
	}
	return items, nil
}

// Find loads an item by name, matching case-insensitively.
func (r *CatalogRepository) Find(ctx context.Context, name string) (domain.Item, error) {
	if r == nil || r.items == nil {
		return domain.Item{}, errors.New("catalog repository not initialised")
	}
	id, err := itemID(name)
	if err != nil {
		return domain.Item{}, err
	}
	doc, err := r.items.Get(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}
	return decodeItem(doc.Data), nil
}

// Upsert merges update into the stored document inside a transaction so concurrent
// writers of the same item never lose each other's fields.
func (r *CatalogRepository) Upsert(ctx context.Context, update domain.Item, position int64) (domain.Item, bool, error) {
	if r == nil || r.items == nil {
		return domain.Item{}, false, errors.New("catalog repository not initialised")
	}
	id, err := itemID(update.Name)
	if err != nil {
		return domain.Item{}, false, err
	}

	var (
		result  domain.Item
		created bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.clock().UTC()
		current, found, err := r.items.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		doc := current.Data
		created = !found
		if created {
			doc = itemDocument{
				Name:           strings.TrimSpace(update.Name),
				NormalizedName: domain.NormalizeName(update.Name),
				Position:       position,
				CreatedAt:      now,
			}
		}
		merged := decodeItem(doc).Apply(update)
		doc.Category = merged.Category
		doc.Subcategory = merged.Subcategory
		doc.Requests = merged.Requests
		doc.UpdatedAt = now
		result = decodeItem(doc)
		return r.items.SetTx(ctx, tx, id, doc)
	})
	if err != nil {
		return domain.Item{}, false, err
	}
	return result, created, nil
}

// UpdateRequests replaces the request list of an existing item.
func (r *CatalogRepository) UpdateRequests(ctx context.Context, name string, requests []string) (domain.Item, error) {
	if r == nil || r.items == nil {
		return domain.Item{}, errors.New("catalog repository not initialised")
	}
	id, err := itemID(name)
	if err != nil {
		return domain.Item{}, err
	}

	var result domain.Item
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, found, err := r.items.GetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return pfirestore.WrapError("items.update_requests", status.Errorf(codes.NotFound, "item %q not found", name))
		}
		doc := current.Data
		doc.Requests = append([]string{}, requests...)
		doc.UpdatedAt = r.clock().UTC()
		result = decodeItem(doc)
		return r.items.SetTx(ctx, tx, id, doc)
	})
	if err != nil {
		return domain.Item{}, err
	}
	return result, nil
}

func itemID(name string) (string, error) {
	id := domain.ItemID(name)
	if id == "" {
		return "", pfirestore.WrapError("items.id", status.Error(codes.InvalidArgument, "item name is required"))
	}
	return id, nil
}

func decodeItem(doc itemDocument) domain.Item {
	requests := doc.Requests
	if requests == nil {
		requests = []string{}
	}
	return domain.Item{
		Name:        doc.Name,
		Category:    doc.Category,
		Subcategory: doc.Subcategory,
		Requests:    requests,
	}
}

package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

const mediaCollection = "media"

type mediaDocument struct {
	Kind      string    `firestore:"kind"`
	Key       string    `firestore:"key"`
	Object    string    `firestore:"object"`
	Status    string    `firestore:"status"`
	Subject   string    `firestore:"subject,omitempty"`
	Label     string    `firestore:"label,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// MediaRepository is the registry of generated media keys.
type MediaRepository struct {
	media *pfirestore.Collection[mediaDocument]
	clock func() time.Time
}

var _ repositories.MediaRepository = (*MediaRepository)(nil)

// NewMediaRepository constructs a Firestore-backed media registry.
func NewMediaRepository(provider *pfirestore.Provider, clock func() time.Time) (*MediaRepository, error) {
	if provider == nil {
		return nil, errors.New("media repository: firestore provider is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &MediaRepository{
		media: pfirestore.NewCollection[mediaDocument](provider, mediaCollection),
		clock: clock,
	}, nil
}

// Record stores or refreshes the mapping for asset.Key.
func (r *MediaRepository) Record(ctx context.Context, asset domain.MediaAsset) error {
	if r == nil || r.media == nil {
		return errors.New("media repository not initialised")
	}
	if !asset.Key.Kind.Valid() || asset.Key.Name == "" {
		return errors.New("media repository: valid key is required")
	}
	now := r.clock().UTC()
	created := asset.CreatedAt
	if created.IsZero() {
		created = now
	}
	location := asset.Location
	if location == "" {
		location = asset.Key.ObjectPath()
	}
	status := asset.Status
	if status == "" {
		status = domain.AssetStatusReady
	}
	_, err := r.media.Set(ctx, mediaDocID(asset.Key), mediaDocument{
		Kind:      string(asset.Key.Kind),
		Key:       asset.Key.Name,
		Object:    location,
		Status:    string(status),
		Subject:   asset.Subject,
		Label:     asset.Label,
		CreatedAt: created.UTC(),
		UpdatedAt: now,
	})
	return err
}

// Find loads the mapping for key.
func (r *MediaRepository) Find(ctx context.Context, key domain.MediaKey) (domain.MediaAsset, error) {
	if r == nil || r.media == nil {
		return domain.MediaAsset{}, errors.New("media repository not initialised")
	}
	doc, err := r.media.Get(ctx, mediaDocID(key))
	if err != nil {
		return domain.MediaAsset{}, err
	}
	return decodeMedia(doc.Data), nil
}

// List returns every recorded mapping ordered by creation time.
func (r *MediaRepository) List(ctx context.Context) ([]domain.MediaAsset, error) {
	if r == nil || r.media == nil {
		return nil, errors.New("media repository not initialised")
	}
	docs, err := r.media.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	assets := make([]domain.MediaAsset, 0, len(docs))
	for _, doc := range docs {
		assets = append(assets, decodeMedia(doc.Data))
	}
	return assets, nil
}

func mediaDocID(key domain.MediaKey) string {
	return string(key.Kind) + ":" + key.Name
}

func decodeMedia(doc mediaDocument) domain.MediaAsset {
	return domain.MediaAsset{
		Key:       domain.MediaKey{Kind: domain.MediaKind(doc.Kind), Name: doc.Key},
		Location:  doc.Object,
		Status:    domain.AssetStatus(doc.Status),
		Subject:   doc.Subject,
		Label:     doc.Label,
		CreatedAt: doc.CreatedAt,
	}
}

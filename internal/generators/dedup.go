package generators

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
)

// ObjectStore is the part of the object storage gateway the generators need.
type ObjectStore interface {
	Exists(ctx context.Context, object string) (bool, error)
	Put(ctx context.Context, object, contentType string, r io.Reader) error
}

// ScratchWriter keeps a local copy of every artifact before it is uploaded.
type ScratchWriter interface {
	Write(objectPath string, data []byte) (string, error)
}

// Logger is the event logger signature shared with services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// mediaStore applies the presence-check-before-generate policy. An artifact that is
// present in the object store is never generated again.
type mediaStore struct {
	objects ObjectStore
	scratch ScratchWriter
	clock   func() time.Time
	logger  Logger
	metrics *observability.GenerationMetrics
}

// lookup returns the stored asset for key when it already exists. A failing existence
// check is logged and treated as absent so generation proceeds and overwrites.
func (s mediaStore) lookup(ctx context.Context, key domain.MediaKey) (domain.MediaAsset, bool) {
	exists, err := s.objects.Exists(ctx, key.ObjectPath())
	if err != nil {
		s.log(ctx, "generators.exists_check_failed", map[string]any{
			"kind":  string(key.Kind),
			"key":   key.Name,
			"error": err,
		})
		return domain.MediaAsset{}, false
	}
	if !exists {
		return domain.MediaAsset{}, false
	}
	s.metrics.CacheHit(ctx, string(key.Kind))
	return s.asset(key), true
}

// persist writes the artifact locally (when a scratch directory is configured) and then
// uploads it under the key's object path.
func (s mediaStore) persist(ctx context.Context, key domain.MediaKey, data []byte) (domain.MediaAsset, error) {
	if len(data) == 0 {
		return domain.MediaAsset{}, generationError(key, "persist", ErrEmptyArtifact)
	}
	if s.scratch != nil {
		if _, err := s.scratch.Write(key.ObjectPath(), data); err != nil {
			return domain.MediaAsset{}, generationError(key, "persist", err)
		}
	}
	if err := s.objects.Put(ctx, key.ObjectPath(), key.Kind.ContentType(), bytes.NewReader(data)); err != nil {
		return domain.MediaAsset{}, generationError(key, "upload", err)
	}
	return s.asset(key), nil
}

func (s mediaStore) asset(key domain.MediaKey) domain.MediaAsset {
	return domain.MediaAsset{
		Key:       key,
		Location:  key.ObjectPath(),
		Status:    domain.AssetStatusReady,
		CreatedAt: s.now(),
	}
}

func (s mediaStore) record(ctx context.Context, key domain.MediaKey, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if IsJobTimeout(err) {
			outcome = "timeout"
		}
	}
	s.metrics.Attempt(ctx, string(key.Kind), outcome, s.now().Sub(started))
}

func (s mediaStore) now() time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}

func (s mediaStore) log(ctx context.Context, event string, fields map[string]any) {
	if s.logger != nil {
		s.logger(ctx, event, fields)
	}
}

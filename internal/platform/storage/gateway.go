package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultSignedURLExpiry = time.Hour
	// V4 signatures cannot outlive seven days.
	maxSignedURLExpiry = 7 * 24 * time.Hour
)

var (
	errNoSigner       = errors.New("storage: signer is required")
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errExpiryTooLong  = errors.New("storage: expiry exceeds permitted maximum")
	errNoBucketClient = errors.New("storage: bucket client is not configured")
)

// ErrObjectNotFound reports that the requested object does not exist in the bucket.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectInfo summarises stored object metadata.
type ObjectInfo struct {
	Name        string
	ContentType string
	Size        int64
	Updated     time.Time
}

// Gateway is the media bucket facade: presence checks, uploads, reads and
// time-bounded signed GET URLs.
type Gateway struct {
	bucket string
	handle *gcs.BucketHandle
	signer Signer
	scheme gcs.SigningScheme
	now    func() time.Time
}

// GatewayOption customises gateway behaviour.
type GatewayOption func(*Gateway)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithBucketClient binds the gateway to a Cloud Storage client for object I/O. Without it
// the gateway can only sign URLs.
func WithBucketClient(client *gcs.Client) GatewayOption {
	return func(g *Gateway) {
		if client != nil {
			g.handle = client.Bucket(g.bucket)
		}
	}
}

// NewGateway constructs the gateway for a single bucket.
func NewGateway(bucket string, signer Signer, opts ...GatewayOption) (*Gateway, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	g := &Gateway{
		bucket: bucket,
		signer: signer,
		scheme: gcs.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Exists reports whether object is present. Errors other than "not exist" are returned
// so callers can decide how to treat an unreliable presence check.
func (g *Gateway) Exists(ctx context.Context, object string) (bool, error) {
	if _, err := g.Stat(ctx, object); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Stat returns object metadata or ErrObjectNotFound.
func (g *Gateway) Stat(ctx context.Context, object string) (ObjectInfo, error) {
	obj, err := g.object(object)
	if err != nil {
		return ObjectInfo{}, err
	}
	attrs, err := obj.Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: stat %s: %w", object, err)
	}
	return ObjectInfo{
		Name:        attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Updated:     attrs.Updated,
	}, nil
}

// Put uploads the contents of r under object, overwriting any existing object.
func (g *Gateway) Put(ctx context.Context, object, contentType string, r io.Reader) error {
	obj, err := g.object(object)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return nil
}

// Open streams object contents. Callers must close the reader.
func (g *Gateway) Open(ctx context.Context, object string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := g.object(object)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, object)
	}
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("storage: open %s: %w", object, err)
	}
	return reader, ObjectInfo{
		Name:        object,
		ContentType: reader.Attrs.ContentType,
		Size:        reader.Attrs.Size,
		Updated:     reader.Attrs.LastModified,
	}, nil
}

// Ping verifies bucket reachability for readiness probes.
func (g *Gateway) Ping(ctx context.Context) error {
	if g.handle == nil {
		return errNoBucketClient
	}
	_, err := g.handle.Attrs(ctx)
	return err
}

// SignedURL returns a V4 signed GET URL for object valid for ttl. A non-positive ttl
// falls back to one hour.
func (g *Gateway) SignedURL(ctx context.Context, object string, ttl time.Duration) (string, time.Time, error) {
	if ctx == nil {
		return "", time.Time{}, errors.New("storage: context is required")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", time.Time{}, errInvalidObject
	}
	if ttl <= 0 {
		ttl = defaultSignedURLExpiry
	}
	if ttl > maxSignedURLExpiry {
		return "", time.Time{}, errExpiryTooLong
	}

	expires := g.now().Add(ttl)
	signed, err := gcs.SignedURL(g.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: g.signer.Email(),
		Scheme:         g.scheme,
		Method:         "GET",
		Expires:        expires,
		SignBytes: func(payload []byte) ([]byte, error) {
			return g.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign url for %s: %w", object, err)
	}
	return signed, expires, nil
}

func (g *Gateway) object(name string) (*gcs.ObjectHandle, error) {
	if g == nil || g.handle == nil {
		return nil, errNoBucketClient
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errInvalidObject
	}
	return g.handle.Object(name), nil
}

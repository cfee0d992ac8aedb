package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	pstorage "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/storage"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

const (
	defaultReadURLTTL   = time.Hour
	defaultUploadURLTTL = 7 * 24 * time.Hour
)

// MediaServiceDeps bundles the collaborators of the media service.
type MediaServiceDeps struct {
	Store  MediaStore
	Media  repositories.MediaRepository
	Speech SpeechGenerator
	// ReadURLTTL bounds links issued by the read endpoints.
	ReadURLTTL time.Duration
	// UploadURLTTL bounds links to freshly generated speech.
	UploadURLTTL time.Duration
	Logger       func(context.Context, string, map[string]any)
}

type mediaService struct {
	store     MediaStore
	media     repositories.MediaRepository
	speech    SpeechGenerator
	readTTL   time.Duration
	uploadTTL time.Duration
	logger    func(context.Context, string, map[string]any)
}

// NewMediaService validates deps and constructs the media service.
func NewMediaService(deps MediaServiceDeps) (MediaService, error) {
	if deps.Store == nil {
		return nil, errors.New("media service: object store is required")
	}
	readTTL := deps.ReadURLTTL
	if readTTL <= 0 {
		readTTL = defaultReadURLTTL
	}
	uploadTTL := deps.UploadURLTTL
	if uploadTTL <= 0 {
		uploadTTL = defaultUploadURLTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &mediaService{
		store:     deps.Store,
		media:     deps.Media,
		speech:    deps.Speech,
		readTTL:   readTTL,
		uploadTTL: uploadTTL,
		logger:    logger,
	}, nil
}

func (s *mediaService) SignedURL(ctx context.Context, key MediaKey) (SignedMedia, error) {
	if !key.Kind.Valid() || key.Name == "" {
		return SignedMedia{}, fmt.Errorf("%w: invalid media key", ErrInvalidInput)
	}
	exists, err := s.store.Exists(ctx, key.ObjectPath())
	if err != nil {
		return SignedMedia{}, storeError("stat object", err)
	}
	if !exists {
		return SignedMedia{}, &NotFoundError{Kind: string(key.Kind), Key: key.FileName()}
	}
	return s.sign(ctx, key, s.readTTL)
}

func (s *mediaService) Open(ctx context.Context, key MediaKey) (io.ReadCloser, MediaObject, error) {
	if !key.Kind.Valid() || key.Name == "" {
		return nil, MediaObject{}, fmt.Errorf("%w: invalid media key", ErrInvalidInput)
	}
	reader, info, err := s.store.Open(ctx, key.ObjectPath())
	if err != nil {
		if errors.Is(err, pstorage.ErrObjectNotFound) {
			return nil, MediaObject{}, &NotFoundError{Kind: string(key.Kind), Key: key.FileName()}
		}
		return nil, MediaObject{}, storeError("open object", err)
	}
	contentType := strings.TrimSpace(info.ContentType)
	if contentType == "" {
		contentType = key.Kind.ContentType()
	}
	return reader, MediaObject{
		Key:         key,
		ContentType: contentType,
		Size:        info.Size,
		UpdatedAt:   info.Updated,
	}, nil
}

func (s *mediaService) GenerateSpeech(ctx context.Context, cmd GenerateSpeechCommand) (SpeechResult, error) {
	if s.speech == nil {
		return SpeechResult{}, fmt.Errorf("%w: speech backend is not configured", ErrUnavailable)
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return SpeechResult{}, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	asset, err := s.speech.Generate(ctx, text, cmd.Voice)
	if err != nil {
		switch {
		case errors.Is(err, generators.ErrUnknownVoice), errors.Is(err, generators.ErrTextTooLong):
			return SpeechResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		case errors.Is(err, generators.ErrBackendNotConfigured):
			return SpeechResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return SpeechResult{}, err
	}

	if s.media != nil {
		if recErr := s.media.Record(ctx, asset); recErr != nil {
			s.logger(ctx, "media.speech.record_failed", map[string]any{
				"key":   asset.Key.String(),
				"error": recErr.Error(),
			})
		}
	}

	signed, err := s.sign(ctx, asset.Key, s.uploadTTL)
	if err != nil {
		return SpeechResult{}, err
	}
	return SpeechResult{Key: asset.Key, URL: signed.URL, ExpiresAt: signed.ExpiresAt}, nil
}

func (s *mediaService) sign(ctx context.Context, key domain.MediaKey, ttl time.Duration) (SignedMedia, error) {
	url, expires, err := s.store.SignedURL(ctx, key.ObjectPath(), ttl)
	if err != nil {
		return SignedMedia{}, storeError("sign url", err)
	}
	return SignedMedia{Key: key, URL: url, ExpiresAt: expires}, nil
}

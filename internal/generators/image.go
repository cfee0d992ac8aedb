package generators

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
)

const imagePromptTemplate = "A realistic, high-quality photograph of %s. Professional lighting, detailed texture, photorealistic style. No text, no watermarks."

// ImageConfig points at an OpenAI-compatible images endpoint.
type ImageConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Quality string
}

// ImageGeneratorDeps bundles the collaborators of the image adapter.
type ImageGeneratorDeps struct {
	Config     ImageConfig
	Objects    ObjectStore
	Scratch    ScratchWriter
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     Logger
	Metrics    *observability.GenerationMetrics
}

// ImageGenerator synthesises still images with a single synchronous backend call.
type ImageGenerator struct {
	cfg      ImageConfig
	endpoint string
	backend  backendClient
	store    mediaStore
}

// NewImageGenerator validates deps and constructs the adapter.
func NewImageGenerator(deps ImageGeneratorDeps) (*ImageGenerator, error) {
	if deps.Objects == nil {
		return nil, errors.New("image generator: object store is required")
	}
	cfg := deps.Config
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	if cfg.Quality == "" {
		cfg.Quality = "standard"
	}
	var endpoint string
	if cfg.BaseURL != "" {
		joined, err := url.JoinPath(cfg.BaseURL, "images/generations")
		if err != nil {
			return nil, fmt.Errorf("image generator: build endpoint: %w", err)
		}
		endpoint = joined
	}
	return &ImageGenerator{
		cfg:      cfg,
		endpoint: endpoint,
		backend: backendClient{
			http:    httpClientOrDefault(deps.HTTPClient),
			headers: map[string]string{"Authorization": "Bearer " + strings.TrimSpace(cfg.APIKey)},
		},
		store: mediaStore{
			objects: deps.Objects,
			scratch: deps.Scratch,
			clock:   deps.Clock,
			logger:  deps.Logger,
			metrics: deps.Metrics,
		},
	}, nil
}

// ImagePrompt expands a subject into the photorealistic prompt sent to the backend.
func ImagePrompt(subject string) string {
	return fmt.Sprintf(imagePromptTemplate, strings.TrimSpace(subject))
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	N       int    `json:"n"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate returns the stored image for key, calling the backend only when the object
// store does not have it yet. subject is what the picture should show.
func (g *ImageGenerator) Generate(ctx context.Context, subject string, key domain.MediaKey) (domain.MediaAsset, error) {
	if key.Kind != domain.MediaImage {
		return domain.MediaAsset{}, generationError(key, "validate", fmt.Errorf("unexpected media kind %q", key.Kind))
	}
	if asset, ok := g.store.lookup(ctx, key); ok {
		asset.Subject = subject
		return asset, nil
	}

	started := g.store.now()
	asset, err := g.generate(ctx, subject, key)
	g.store.record(ctx, key, started, err)
	if err != nil {
		return domain.MediaAsset{}, err
	}
	asset.Subject = subject
	return asset, nil
}

func (g *ImageGenerator) generate(ctx context.Context, subject string, key domain.MediaKey) (domain.MediaAsset, error) {
	if g.endpoint == "" || strings.TrimSpace(g.cfg.APIKey) == "" {
		return domain.MediaAsset{}, generationError(key, "generate", ErrBackendNotConfigured)
	}
	if strings.TrimSpace(subject) == "" {
		return domain.MediaAsset{}, generationError(key, "generate", errors.New("empty subject"))
	}

	var resp imageResponse
	err := g.backend.doJSON(ctx, "image generate", http.MethodPost, g.endpoint, imageRequest{
		Model:   g.cfg.Model,
		Prompt:  ImagePrompt(subject),
		Size:    g.cfg.Size,
		Quality: g.cfg.Quality,
		N:       1,
	}, &resp)
	if err != nil {
		return domain.MediaAsset{}, generationError(key, "generate", err)
	}
	if len(resp.Data) == 0 {
		return domain.MediaAsset{}, generationError(key, "generate", ErrEmptyArtifact)
	}

	var data []byte
	switch first := resp.Data[0]; {
	case first.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return domain.MediaAsset{}, generationError(key, "decode", err)
		}
	case first.URL != "":
		data, err = g.backend.download(ctx, "image download", first.URL, false)
		if err != nil {
			return domain.MediaAsset{}, generationError(key, "fetch", err)
		}
	default:
		return domain.MediaAsset{}, generationError(key, "generate", ErrEmptyArtifact)
	}
	return g.store.persist(ctx, key, data)
}

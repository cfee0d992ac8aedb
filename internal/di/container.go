package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/llm"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/config"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

// ObjectStore is the object storage surface shared by generators and the media service.
type ObjectStore interface {
	generators.ObjectStore
	services.MediaStore
}

// Infrastructure carries the clients built by the process entrypoint.
type Infrastructure struct {
	Objects ObjectStore
	Scratch generators.ScratchWriter
	// Publisher is optional; catalog events are skipped when nil.
	Publisher services.CatalogEventPublisher
	Metrics   *observability.GenerationMetrics
	Logger    func(context.Context, string, map[string]any)
	Build     services.BuildInfo
	Clock     func() time.Time
	// HTTPClient overrides the transport used by the generation backends.
	HTTPClient *http.Client
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog   services.CatalogService
	Media     services.MediaService
	Detection services.DetectionService
	System    services.SystemService
}

// Container wires repositories, model clients, and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries
// and object stores.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if infra.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if infra.Clock == nil {
		infra.Clock = time.Now
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	var svc Services

	model, err := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.LLM.VisionModel,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
	}, llmOptions(infra)...)
	if err != nil {
		return Services{}, fmt.Errorf("build llm client: %w", err)
	}

	imageClient := infra.HTTPClient
	if imageClient == nil && cfg.Image.Timeout > 0 {
		imageClient = &http.Client{Timeout: cfg.Image.Timeout}
	}
	images, err := generators.NewImageGenerator(generators.ImageGeneratorDeps{
		Config: generators.ImageConfig{
			BaseURL: cfg.Image.BaseURL,
			APIKey:  cfg.Image.APIKey,
			Model:   cfg.Image.Model,
			Size:    cfg.Image.Size,
			Quality: cfg.Image.Quality,
		},
		Objects:    infra.Objects,
		Scratch:    infra.Scratch,
		HTTPClient: imageClient,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
		Metrics:    infra.Metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build image generator: %w", err)
	}

	videos, err := generators.NewVideoOrchestrator(generators.VideoOrchestratorDeps{
		Config: generators.VideoConfig{
			Endpoint: cfg.Video.Endpoint,
			Token:    cfg.Video.Token,
			Poll: generators.PollConfig{
				Interval: cfg.Video.PollInterval,
				MaxPolls: cfg.Video.MaxPolls,
				Timeout:  cfg.Video.JobTimeout,
			},
		},
		Objects:    infra.Objects,
		Scratch:    infra.Scratch,
		Images:     images,
		HTTPClient: infra.HTTPClient,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
		Metrics:    infra.Metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build video orchestrator: %w", err)
	}

	speech, err := generators.NewSpeechOrchestrator(generators.SpeechOrchestratorDeps{
		Config: generators.SpeechConfig{
			Endpoint:     cfg.Speech.Endpoint,
			APIKey:       cfg.Speech.APIKey,
			Model:        cfg.Speech.Model,
			DefaultVoice: cfg.Speech.DefaultVoice,
			Poll: generators.PollConfig{
				Interval: cfg.Speech.PollInterval,
				MaxPolls: cfg.Speech.MaxPolls,
				Timeout:  cfg.Speech.JobTimeout,
			},
		},
		Objects:    infra.Objects,
		Scratch:    infra.Scratch,
		HTTPClient: infra.HTTPClient,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
		Metrics:    infra.Metrics,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build speech orchestrator: %w", err)
	}

	// classification failures surface to the caller on the first attempt
	classifier, err := services.NewTaxonomyClassifier(model.SingleAttempt())
	if err != nil {
		return Services{}, fmt.Errorf("build classifier: %w", err)
	}

	var publisher services.CatalogEventPublisher
	if cfg.Features.EnableCatalogEvents {
		publisher = infra.Publisher
	}

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Classifier: classifier,
		Catalog:    reg.Catalog(),
		Media:      reg.Media(),
		Images:     images,
		Videos:     videos,
		Speech:     speech,
		ItemSpeech: cfg.Features.EnableItemSpeech,
		Publisher:  publisher,
		Clock:      infra.Clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	mediaSvc, err := services.NewMediaService(services.MediaServiceDeps{
		Store:        infra.Objects,
		Media:        reg.Media(),
		Speech:       speech,
		ReadURLTTL:   cfg.Storage.ReadURLTTL,
		UploadURLTTL: cfg.Storage.UploadURLTTL,
		Logger:       infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build media service: %w", err)
	}
	svc.Media = mediaSvc

	detectionSvc, err := services.NewDetectionService(services.DetectionServiceDeps{
		Vision: model,
		Logger: infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build detection service: %w", err)
	}
	svc.Detection = detectionSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health: healthRepo,
			Clock:  infra.Clock,
			Build:  build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func llmOptions(infra Infrastructure) []llm.Option {
	if infra.HTTPClient == nil {
		return nil
	}
	return []llm.Option{llm.WithHTTPClient(infra.HTTPClient)}
}

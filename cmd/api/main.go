package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/di"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/handlers"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/config"
	pfirestore "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/jobs"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
	platformstorage "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/storage"
	firestoreRepo "github.com/calvinseptyanto-clone/what-i-meant/internal/repositories/firestore"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

const serviceName = "what-i-meant"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromConfig(cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	signer, err := platformstorage.LoadServiceAccountSigner(cfg.Storage.SignerJSON)
	if err != nil {
		logger.Fatal("failed to load storage signer", zap.Error(err))
	}
	gateway, err := platformstorage.NewGateway(cfg.Storage.MediaBucket, signer,
		platformstorage.WithBucketClient(storageClient),
	)
	if err != nil {
		logger.Fatal("failed to initialise media gateway", zap.Error(err))
	}
	scratch, err := platformstorage.NewScratch(cfg.Storage.ScratchDir)
	if err != nil {
		logger.Fatal("failed to prepare scratch directory", zap.Error(err))
	}

	var (
		publisher services.CatalogEventPublisher
		topic     *pubsub.Topic
	)
	if cfg.Features.EnableCatalogEvents {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Jobs.ProjectID)
		if err != nil {
			logger.Warn("catalog events disabled: pubsub client init failed", zap.Error(err))
		} else {
			defer func() {
				if err := pubsubClient.Close(); err != nil {
					logger.Warn("pubsub close error", zap.Error(err))
				}
			}()
			topic = pubsubClient.Topic(cfg.Jobs.CatalogTopic)
			catalogPublisher, err := jobs.NewPubSubCatalogPublisher(topic)
			if err != nil {
				logger.Fatal("failed to initialise catalog publisher", zap.Error(err))
			}
			defer catalogPublisher.Stop()
			publisher = catalogPublisher
		}
	}

	metrics, err := observability.NewGenerationMetrics(nil)
	if err != nil {
		logger.Warn("generation metrics disabled", zap.Error(err))
	}

	health, err := newHealthRepository(firestoreProvider, gateway, fetcher, topic)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, health, time.Now)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Infrastructure{
		Objects:   gateway,
		Scratch:   scratch,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    observability.EventLogger(logger.Named("services")),
		Build:     buildInfo,
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Catalog)
	mediaHandlers := handlers.NewMediaHandlers(container.Services.Media, container.Services.Detection,
		handlers.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(strings.TrimSpace(cfg.Firestore.ProjectID)),
		observability.RecoveryMiddleware(httpLogger),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithReadRoutes(catalogHandlers.Routes, mediaHandlers.Routes),
		handlers.WithGenerationRoutes(catalogHandlers.GenerationRoutes, mediaHandlers.GenerationRoutes),
		handlers.WithGenerationRateLimit(cfg.Server.GenerationRateLimit, cfg.Server.GenerationWindow),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("what-i-meant api listening",
			zap.String("environment", buildInfo.Environment),
			zap.Bool("catalogEvents", publisher != nil),
			zap.Bool("itemSpeech", cfg.Features.EnableItemSpeech),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromConfig(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(cfg.Build.Version)
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(cfg.Build.CommitSHA)
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

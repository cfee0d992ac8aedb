package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/requestctx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/textutil"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/repositories"
)

// CatalogServiceDeps bundles the collaborators of the orchestration engine.
type CatalogServiceDeps struct {
	Classifier Classifier
	Catalog    repositories.CatalogRepository
	Media      repositories.MediaRepository
	Images     ImageGenerator
	Videos     VideoGenerator
	// Speech is optional; it is only used when ItemSpeech is enabled.
	Speech     SpeechGenerator
	ItemSpeech bool
	// Publisher is optional. Publishing is best effort.
	Publisher   CatalogEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type catalogService struct {
	classifier Classifier
	catalog    repositories.CatalogRepository
	media      repositories.MediaRepository
	images     ImageGenerator
	videos     VideoGenerator
	speech     SpeechGenerator
	itemSpeech bool
	publisher  CatalogEventPublisher
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
	items      *keyedMutex
	jobs       *keyedMutex
}

// NewCatalogService validates deps and returns the engine.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Classifier == nil {
		return nil, errors.New("catalog service: classifier is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	if deps.Media == nil {
		return nil, errors.New("catalog service: media repository is required")
	}
	if deps.Images == nil {
		return nil, errors.New("catalog service: image generator is required")
	}
	if deps.Videos == nil {
		return nil, errors.New("catalog service: video generator is required")
	}
	if deps.ItemSpeech && deps.Speech == nil {
		return nil, errors.New("catalog service: speech generator is required when item speech is enabled")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		classifier: deps.Classifier,
		catalog:    deps.Catalog,
		media:      deps.Media,
		images:     deps.Images,
		videos:     deps.Videos,
		speech:     deps.Speech,
		itemSpeech: deps.ItemSpeech,
		publisher:  deps.Publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
		items:  newKeyedMutex(),
		jobs:   newKeyedMutex(),
	}, nil
}

// batch accumulates the outcome of one CategorizeItems call.
type batch struct {
	id       string
	media    CatalogSnapshot
	keys     []string
	failures []GenerationFailure
}

func (s *catalogService) CategorizeItems(ctx context.Context, cmd CategorizeItemsCommand) (CategorizeResult, error) {
	raw := strings.TrimSpace(cmd.Items)
	if raw == "" {
		return CategorizeResult{}, &ClassificationError{Op: "validate", Err: fmt.Errorf("%w: %v", ErrInvalidInput, errEmptyItems)}
	}

	ctx, span := observability.Tracer().Start(ctx, "catalog.CategorizeItems")
	defer span.End()

	classified, err := s.classifier.Classify(ctx, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return CategorizeResult{}, err
	}
	span.SetAttributes(attribute.Int("catalog.items", len(classified)))
	if len(classified) == 0 {
		return s.unchanged(ctx)
	}

	names := make([]string, 0, len(classified))
	for _, item := range classified {
		names = append(names, domain.NormalizeName(item.Name))
	}
	unlock := s.items.lockAll(names)
	merged, touched, err := s.persist(ctx, classified)
	unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog store failed")
		return CategorizeResult{}, err
	}

	run := &batch{id: s.newID(), media: domain.NewCatalogSnapshot()}
	ctx = requestctx.WithBatchID(ctx, run.id)
	for _, item := range touched {
		s.generateItemMedia(ctx, run, item)
	}
	s.generateTaxonomyImages(ctx, run, touched)

	span.SetAttributes(
		attribute.String("catalog.batch_id", run.id),
		attribute.Int("catalog.generated", len(run.keys)),
		attribute.Int("catalog.failures", len(run.failures)),
	)
	s.publish(ctx, run, touched)

	return CategorizeResult{
		BatchID:  run.id,
		Items:    merged,
		Images:   run.media.Images,
		Videos:   run.media.Videos,
		Audio:    run.media.Audio,
		Failures: run.failures,
	}, nil
}

// unchanged answers a batch the model found nothing in with the stored catalog.
func (s *catalogService) unchanged(ctx context.Context) (CategorizeResult, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return CategorizeResult{}, err
	}
	s.logger(ctx, "catalog.categorize.empty", nil)
	return CategorizeResult{
		BatchID: s.newID(),
		Items:   snapshot.Items,
		Images:  snapshot.Images,
		Videos:  snapshot.Videos,
		Audio:   snapshot.Audio,
	}, nil
}

// persist merges classified into the stored catalog. It returns the full merged catalog
// and the stored versions of the items this batch touched, in first-seen order.
func (s *catalogService) persist(ctx context.Context, classified []Item) ([]Item, []Item, error) {
	existing, err := s.catalog.List(ctx)
	if err != nil {
		return nil, nil, storeError("list items", err)
	}
	merged := MergeItems(existing, classified)

	index := make(map[string]int, len(merged))
	for i, item := range merged {
		index[domain.NormalizeName(item.Name)] = i
	}

	base := s.clock().UnixNano()
	touched := make([]Item, 0, len(classified))
	seen := make(map[string]struct{}, len(classified))
	for i, update := range classified {
		id := domain.NormalizeName(update.Name)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		// the merged record already folds duplicate names within the batch
		pos, ok := index[id]
		if !ok {
			continue
		}
		stored, created, err := s.catalog.Upsert(ctx, merged[pos], base+int64(i))
		if err != nil {
			return nil, nil, storeError("upsert item", err)
		}
		merged[pos] = stored
		touched = append(touched, stored)
		s.logger(ctx, "catalog.item.upserted", map[string]any{
			"item":    stored.Name,
			"created": created,
		})
	}
	return merged, touched, nil
}

func (s *catalogService) generateItemMedia(ctx context.Context, run *batch, item Item) {
	asset, err := s.images.Generate(ctx, item.Name, domain.ItemImageKey(item.Name))
	s.collect(ctx, run, domain.ItemImageLabel(item.Name), asset, err)

	for _, request := range item.Requests {
		action := strings.TrimSpace(request)
		if action == "" {
			continue
		}
		asset, err := s.generateVideo(ctx, item.Name, action)
		s.collect(ctx, run, domain.VideoLabel(item.Name, action), asset, err)
	}

	if s.itemSpeech {
		asset, err := s.speech.Generate(ctx, item.Name, "")
		s.collect(ctx, run, "", asset, err)
	}
}

func (s *catalogService) generateTaxonomyImages(ctx context.Context, run *batch, items []Item) {
	categories := make([]string, 0, len(items))
	seenCategory := make(map[string]struct{}, len(items))
	type pair struct{ category, subcategory string }
	subcategories := make([]pair, 0, len(items))
	seenSub := make(map[string]struct{}, len(items))

	for _, item := range items {
		if item.Category == "" {
			continue
		}
		if _, ok := seenCategory[domain.NormalizeName(item.Category)]; !ok {
			seenCategory[domain.NormalizeName(item.Category)] = struct{}{}
			categories = append(categories, item.Category)
		}
		if item.Subcategory == "" {
			continue
		}
		subKey := domain.SubcategoryImageKey(item.Category, item.Subcategory).Name
		if _, ok := seenSub[subKey]; !ok {
			seenSub[subKey] = struct{}{}
			subcategories = append(subcategories, pair{item.Category, item.Subcategory})
		}
	}

	for _, category := range categories {
		asset, err := s.images.Generate(ctx, category, domain.CategoryImageKey(category))
		s.collect(ctx, run, domain.CategoryImageLabel(category), asset, err)
	}
	for _, sub := range subcategories {
		subject := sub.subcategory + " in " + sub.category
		asset, err := s.images.Generate(ctx, subject, domain.SubcategoryImageKey(sub.category, sub.subcategory))
		s.collect(ctx, run, domain.SubcategoryImageLabel(sub.category, sub.subcategory), asset, err)
	}
}

func (s *catalogService) generateVideo(ctx context.Context, itemName, action string) (MediaAsset, error) {
	key := domain.VideoKey(itemName, action)
	unlock := s.jobs.lock(key.String())
	defer unlock()
	asset, err := s.videos.Generate(ctx, itemName, action)
	if err != nil {
		return MediaAsset{}, err
	}
	asset.Label = domain.VideoLabel(itemName, action)
	return asset, nil
}

// collect records a generated asset under label, or a soft failure. Neither path aborts the batch.
func (s *catalogService) collect(ctx context.Context, run *batch, label string, asset MediaAsset, err error) {
	if err != nil {
		failure := generationFailure(err)
		run.failures = append(run.failures, failure)
		s.logger(ctx, "catalog.generation.failed", map[string]any{
			"batchId": run.id,
			"kind":    failure.Kind,
			"key":     failure.Key,
			"op":      failure.Op,
			"error":   err.Error(),
		})
		return
	}
	if asset.Key.Name == "" {
		return
	}
	asset.Label = label
	if recErr := s.media.Record(ctx, asset); recErr != nil {
		s.logger(ctx, "catalog.media.record_failed", map[string]any{
			"batchId": run.id,
			"key":     asset.Key.String(),
			"error":   recErr.Error(),
		})
	}
	run.media.Add(asset.Label, asset.Key)
	run.keys = append(run.keys, asset.Key.String())
}

func (s *catalogService) publish(ctx context.Context, run *batch, items []Item) {
	if s.publisher == nil {
		return
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	event := CatalogEvent{
		ID:         s.newID(),
		Type:       CatalogEventUpdated,
		BatchID:    run.id,
		Items:      names,
		Keys:       append([]string{}, run.keys...),
		Failures:   len(run.failures),
		OccurredAt: s.clock(),
	}
	messageID, err := s.publisher.PublishCatalogEvent(requestctx.Detach(ctx), event)
	if err != nil {
		s.logger(ctx, "catalog.event.publish_failed", map[string]any{
			"batchId": run.id,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "catalog.event.published", map[string]any{
		"batchId":   run.id,
		"messageId": messageID,
	})
}

func (s *catalogService) Snapshot(ctx context.Context) (CatalogSnapshot, error) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		return CatalogSnapshot{}, storeError("list items", err)
	}
	assets, err := s.media.List(ctx)
	if err != nil {
		return CatalogSnapshot{}, storeError("list media", err)
	}

	snapshot := domain.NewCatalogSnapshot()
	if items != nil {
		snapshot.Items = items
	}
	labels := domain.Labels(items)
	for _, asset := range assets {
		if asset.Status != domain.AssetStatusReady {
			continue
		}
		label := asset.Label
		if label == "" {
			label = labels[asset.Key.Name]
		}
		snapshot.Add(label, asset.Key)
	}
	return snapshot, nil
}

func (s *catalogService) UpdateItemRequests(ctx context.Context, cmd UpdateItemRequestsCommand) (Item, error) {
	name := textutil.CleanText(cmd.ItemName)
	if name == "" {
		return Item{}, fmt.Errorf("%w: itemName is required", ErrInvalidInput)
	}
	if cmd.Requests == nil {
		return Item{}, fmt.Errorf("%w: requests is required", ErrInvalidInput)
	}

	var videoKey MediaKey
	if path := strings.TrimSpace(cmd.VideoPath); path != "" {
		key, ok := domain.ParseMediaKey(domain.MediaVideo, path)
		if !ok {
			return Item{}, fmt.Errorf("%w: invalid videoPath", ErrInvalidInput)
		}
		videoKey = key
	}

	unlock := s.items.lock(domain.NormalizeName(name))
	defer unlock()

	item, err := s.catalog.UpdateRequests(ctx, name, textutil.CleanList(cmd.Requests))
	if err != nil {
		if isRepoNotFound(err) {
			return Item{}, &NotFoundError{Kind: "item", Key: name}
		}
		return Item{}, storeError("update requests", err)
	}

	if videoKey.Name != "" {
		asset := MediaAsset{
			Key:       videoKey,
			Location:  videoKey.ObjectPath(),
			Status:    domain.AssetStatusReady,
			Subject:   item.Name,
			CreatedAt: s.clock(),
		}
		if err := s.media.Record(ctx, asset); err != nil {
			return Item{}, storeError("record video", err)
		}
	}
	return item, nil
}

func (s *catalogService) GenerateActionVideo(ctx context.Context, cmd GenerateActionVideoCommand) (MediaAsset, error) {
	itemName := textutil.CleanText(cmd.ItemName)
	action := textutil.CleanText(cmd.Action)
	if itemName == "" || action == "" {
		return MediaAsset{}, fmt.Errorf("%w: itemName and action are required", ErrInvalidInput)
	}

	ctx, span := observability.Tracer().Start(ctx, "catalog.GenerateActionVideo")
	defer span.End()

	asset, err := s.generateVideo(ctx, itemName, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "video generation failed")
		return MediaAsset{}, err
	}
	if err := s.media.Record(ctx, asset); err != nil {
		s.logger(ctx, "catalog.media.record_failed", map[string]any{
			"key":   asset.Key.String(),
			"error": err.Error(),
		})
	}
	return asset, nil
}

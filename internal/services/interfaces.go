package services

import (
	"context"
	"io"
	"time"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	pstorage "github.com/calvinseptyanto-clone/what-i-meant/internal/platform/storage"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Item               = domain.Item
	MediaKey           = domain.MediaKey
	MediaAsset         = domain.MediaAsset
	CatalogSnapshot    = domain.CatalogSnapshot
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService is the orchestration engine: classification, media generation and
// catalog persistence for a batch of free-text items.
type CatalogService interface {
	CategorizeItems(ctx context.Context, cmd CategorizeItemsCommand) (CategorizeResult, error)
	Snapshot(ctx context.Context) (CatalogSnapshot, error)
	UpdateItemRequests(ctx context.Context, cmd UpdateItemRequestsCommand) (Item, error)
	GenerateActionVideo(ctx context.Context, cmd GenerateActionVideoCommand) (MediaAsset, error)
}

// MediaService resolves stored media for read endpoints and produces speech on demand.
type MediaService interface {
	SignedURL(ctx context.Context, key MediaKey) (SignedMedia, error)
	Open(ctx context.Context, key MediaKey) (io.ReadCloser, MediaObject, error)
	GenerateSpeech(ctx context.Context, cmd GenerateSpeechCommand) (SpeechResult, error)
}

// DetectionService names the physical object shown in a photo.
type DetectionService interface {
	DetectObject(ctx context.Context, cmd DetectObjectCommand) (string, error)
}

// SystemService exposes operational metadata such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Classifier turns raw item text into structured catalog items.
type Classifier interface {
	Classify(ctx context.Context, raw string) ([]Item, error)
}

// TextCompleter issues a single language-model completion.
type TextCompleter interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ImageDescriber asks a vision model about an image.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, instruction, contentType string, image []byte) (string, error)
}

// ImageGenerator produces (or reuses) the image stored under key.
type ImageGenerator interface {
	Generate(ctx context.Context, subject string, key MediaKey) (MediaAsset, error)
}

// VideoGenerator produces (or reuses) the clip for an item/action pair.
type VideoGenerator interface {
	Generate(ctx context.Context, itemName, action string) (MediaAsset, error)
}

// SpeechGenerator produces (or reuses) spoken audio for text.
type SpeechGenerator interface {
	Generate(ctx context.Context, text, voice string) (MediaAsset, error)
}

// MediaStore is the read side of the object storage gateway.
type MediaStore interface {
	Exists(ctx context.Context, object string) (bool, error)
	Open(ctx context.Context, object string) (io.ReadCloser, pstorage.ObjectInfo, error)
	SignedURL(ctx context.Context, object string, ttl time.Duration) (string, time.Time, error)
}

// CatalogEventPublisher announces catalog changes to downstream consumers.
type CatalogEventPublisher interface {
	PublishCatalogEvent(ctx context.Context, event CatalogEvent) (string, error)
}

// CatalogEventUpdated is published after a batch has been merged into the catalog.
const CatalogEventUpdated = "catalog.updated"

// CatalogEvent is the Pub/Sub payload describing one catalog change.
type CatalogEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BatchID    string    `json:"batchId"`
	Items      []string  `json:"items"`
	Keys       []string  `json:"keys"`
	Failures   int       `json:"failures"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Command and DTO definitions ------------------------------------------------

type CategorizeItemsCommand struct {
	Items string
}

// CategorizeResult is the batch response. Items is the whole merged catalog; the media
// maps hold the keys this batch produced or reused.
type CategorizeResult struct {
	BatchID  string
	Items    []Item
	Images   map[string]string
	Videos   map[string]string
	Audio    map[string]string
	Failures []GenerationFailure
}

// GenerationFailure is the caller-facing summary of a skipped asset.
type GenerationFailure struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Op    string `json:"op"`
	Error string `json:"error"`
}

type UpdateItemRequestsCommand struct {
	ItemName  string
	Requests  []string
	VideoPath string
}

type GenerateActionVideoCommand struct {
	ItemName string
	Action   string
}

type GenerateSpeechCommand struct {
	Text  string
	Voice string
}

type DetectObjectCommand struct {
	ContentType string
	Image       []byte
}

// SignedMedia is a time-bounded link to a stored artifact.
type SignedMedia struct {
	Key       MediaKey
	URL       string
	ExpiresAt time.Time
}

// MediaObject describes a streamed artifact.
type MediaObject struct {
	Key         MediaKey
	ContentType string
	Size        int64
	UpdatedAt   time.Time
}

// SpeechResult is returned by GenerateSpeech.
type SpeechResult struct {
	Key       MediaKey
	URL       string
	ExpiresAt time.Time
}

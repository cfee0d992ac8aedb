package generators

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
)

// Job states reported by the video backend.
const (
	VideoStatusPending    = "pending"
	VideoStatusProcessing = "processing"
	VideoStatusCompleted  = "completed"
	VideoStatusFailed     = "failed"
)

// Fixed synthesis parameters so the same key always describes the same clip.
const (
	videoSeed           = 42
	videoNegativePrompt = "low quality, blurry"
	videoInferSteps     = 50
	videoCFGScale       = 7.5
	videoHeight         = 480
	videoWidth          = 832
)

// ImageSource provides the reference still for an item.
type ImageSource interface {
	Generate(ctx context.Context, subject string, key domain.MediaKey) (domain.MediaAsset, error)
}

// VideoConfig points at the job-based video backend.
type VideoConfig struct {
	Endpoint string
	Token    string
	Poll     PollConfig
}

// VideoOrchestratorDeps bundles the collaborators of the video orchestrator.
type VideoOrchestratorDeps struct {
	Config     VideoConfig
	Objects    ObjectStore
	Scratch    ScratchWriter
	Images     ImageSource
	HTTPClient *http.Client
	Clock      func() time.Time
	Sleep      func(context.Context, time.Duration) error
	Logger     Logger
	Metrics    *observability.GenerationMetrics
}

// VideoOrchestrator submits video jobs and polls them to completion.
type VideoOrchestrator struct {
	endpoint string
	backend  backendClient
	images   ImageSource
	poller   poller
	store    mediaStore
}

// NewVideoOrchestrator validates deps and constructs the orchestrator.
func NewVideoOrchestrator(deps VideoOrchestratorDeps) (*VideoOrchestrator, error) {
	if deps.Objects == nil {
		return nil, errors.New("video orchestrator: object store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	return &VideoOrchestrator{
		endpoint: strings.TrimRight(strings.TrimSpace(deps.Config.Endpoint), "/"),
		backend: backendClient{
			http:    httpClientOrDefault(deps.HTTPClient),
			headers: map[string]string{"Authorization": strings.TrimSpace(deps.Config.Token)},
		},
		images: deps.Images,
		poller: poller{cfg: deps.Config.Poll, clock: clock, sleep: sleep},
		store: mediaStore{
			objects: deps.Objects,
			scratch: deps.Scratch,
			clock:   deps.Clock,
			logger:  deps.Logger,
			metrics: deps.Metrics,
		},
	}, nil
}

// VideoPrompt is the template sent to the backend for an item/action pair.
func VideoPrompt(itemName, action string) string {
	return fmt.Sprintf("A person %s with %s, realistic, natural movement", strings.TrimSpace(action), strings.TrimSpace(itemName))
}

type videoSubmitRequest struct {
	Prompt     string  `json:"prompt"`
	Seed       int     `json:"seed"`
	NegPrompt  string  `json:"neg_prompt"`
	InferSteps int     `json:"infer_steps"`
	CFGScale   float64 `json:"cfg_scale"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
}

type videoSubmitResponse struct {
	TaskID string `json:"task_id"`
}

type videoStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Generate returns the stored clip for (itemName, action), submitting and polling a
// backend job only when the object store does not have it yet.
func (o *VideoOrchestrator) Generate(ctx context.Context, itemName, action string) (domain.MediaAsset, error) {
	key := domain.VideoKey(itemName, action)
	subject := itemName + " / " + action
	if asset, ok := o.store.lookup(ctx, key); ok {
		asset.Subject = subject
		return asset, nil
	}

	started := o.store.now()
	asset, err := o.generate(ctx, itemName, action, key)
	o.store.record(ctx, key, started, err)
	if err != nil {
		return domain.MediaAsset{}, err
	}
	asset.Subject = subject
	return asset, nil
}

func (o *VideoOrchestrator) generate(ctx context.Context, itemName, action string, key domain.MediaKey) (domain.MediaAsset, error) {
	if o.endpoint == "" {
		return domain.MediaAsset{}, generationError(key, "submit", ErrBackendNotConfigured)
	}
	o.ensureReferenceImage(ctx, itemName)

	var submitted videoSubmitResponse
	err := o.backend.doJSON(ctx, "video submit", http.MethodPost, o.endpoint+"/generate", videoSubmitRequest{
		Prompt:     VideoPrompt(itemName, action),
		Seed:       videoSeed,
		NegPrompt:  videoNegativePrompt,
		InferSteps: videoInferSteps,
		CFGScale:   videoCFGScale,
		Height:     videoHeight,
		Width:      videoWidth,
	}, &submitted)
	if err != nil {
		return domain.MediaAsset{}, generationError(key, "submit", err)
	}
	taskID := strings.TrimSpace(submitted.TaskID)
	if taskID == "" {
		return domain.MediaAsset{}, generationError(key, "submit", ErrNoJobID)
	}
	taskURL := o.endpoint + "/tasks/" + url.PathEscape(taskID)

	polls, err := o.poller.run(ctx, taskID, func(ctx context.Context) (bool, error) {
		var status videoStatusResponse
		if err := o.backend.doJSON(ctx, "video status", http.MethodGet, taskURL+"/status", nil, &status); err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(status.Status)) {
		case VideoStatusCompleted:
			return true, nil
		case VideoStatusFailed:
			reason := strings.TrimSpace(status.Error)
			if reason == "" {
				reason = "unknown error"
			}
			return false, fmt.Errorf("%w: %s", ErrJobFailed, reason)
		default:
			return false, nil
		}
	})
	o.store.metrics.Polls(ctx, string(key.Kind), polls)
	if err != nil {
		return domain.MediaAsset{}, generationError(key, "poll", err)
	}

	data, err := o.backend.download(ctx, "video fetch", taskURL+"/video", true)
	if err != nil {
		return domain.MediaAsset{}, generationError(key, "fetch", err)
	}
	return o.store.persist(ctx, key, data)
}

// ensureReferenceImage makes sure the item still exists. The clip does not depend on
// it, so a failure is only logged.
func (o *VideoOrchestrator) ensureReferenceImage(ctx context.Context, itemName string) {
	if o.images == nil {
		return
	}
	if _, err := o.images.Generate(ctx, itemName, domain.ItemImageKey(itemName)); err != nil {
		o.store.log(ctx, "generators.reference_image_failed", map[string]any{
			"item":  itemName,
			"error": err,
		})
	}
}

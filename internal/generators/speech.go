package generators

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/observability"
)

// Task states reported by the speech backend.
const (
	SpeechStatusPending   = "PENDING"
	SpeechStatusRunning   = "RUNNING"
	SpeechStatusSucceeded = "SUCCEEDED"
	SpeechStatusFailed    = "FAILED"
	SpeechStatusCanceled  = "CANCELED"
	SpeechStatusUnknown   = "UNKNOWN"
)

const (
	defaultSpeechModel = "cosyvoice-v1"
	defaultSpeechVoice = "longxiaochun"
	maxSpeechRunes     = 2000
)

// DefaultVoices lists the voices accepted when no explicit list is configured.
var DefaultVoices = []string{
	"longxiaochun", "longwan", "longcheng", "longhua", "longxiaoxia",
	"longxiaocheng", "longxiaobai", "longshu", "longjing", "loongstella", "loongbella",
}

var (
	// ErrUnknownVoice is returned for a voice outside the configured set.
	ErrUnknownVoice = errors.New("generators: unknown voice")
	// ErrTextTooLong is returned when the text exceeds what the backend accepts.
	ErrTextTooLong = errors.New("generators: text too long")
)

// SpeechConfig points at the asynchronous text-to-speech backend.
type SpeechConfig struct {
	Endpoint     string
	APIKey       string
	Model        string
	DefaultVoice string
	Voices       []string
	Poll         PollConfig
}

// SpeechOrchestratorDeps bundles the collaborators of the speech orchestrator.
type SpeechOrchestratorDeps struct {
	Config     SpeechConfig
	Objects    ObjectStore
	Scratch    ScratchWriter
	HTTPClient *http.Client
	Clock      func() time.Time
	Sleep      func(context.Context, time.Duration) error
	Logger     Logger
	Metrics    *observability.GenerationMetrics
}

// SpeechOrchestrator submits text-to-speech tasks and polls them to completion.
type SpeechOrchestrator struct {
	cfg      SpeechConfig
	endpoint string
	backend  backendClient
	poller   poller
	store    mediaStore
}

// NewSpeechOrchestrator validates deps and constructs the orchestrator.
func NewSpeechOrchestrator(deps SpeechOrchestratorDeps) (*SpeechOrchestrator, error) {
	if deps.Objects == nil {
		return nil, errors.New("speech orchestrator: object store is required")
	}
	cfg := deps.Config
	if cfg.Model == "" {
		cfg.Model = defaultSpeechModel
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = defaultSpeechVoice
	}
	if len(cfg.Voices) == 0 {
		cfg.Voices = DefaultVoices
	}
	if !slices.Contains(cfg.Voices, cfg.DefaultVoice) {
		cfg.Voices = append(slices.Clone(cfg.Voices), cfg.DefaultVoice)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	return &SpeechOrchestrator{
		cfg:      cfg,
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		backend: backendClient{
			http: httpClientOrDefault(deps.HTTPClient),
			headers: map[string]string{
				"Authorization":     "Bearer " + strings.TrimSpace(cfg.APIKey),
				"X-DashScope-Async": "enable",
			},
		},
		poller: poller{cfg: cfg.Poll, clock: clock, sleep: sleep},
		store: mediaStore{
			objects: deps.Objects,
			scratch: deps.Scratch,
			clock:   deps.Clock,
			logger:  deps.Logger,
			metrics: deps.Metrics,
		},
	}, nil
}

// ResolveVoice applies the default and validates voice against the configured set.
func (o *SpeechOrchestrator) ResolveVoice(voice string) (string, error) {
	voice = strings.TrimSpace(voice)
	if voice == "" {
		return o.cfg.DefaultVoice, nil
	}
	if !slices.Contains(o.cfg.Voices, voice) {
		return "", fmt.Errorf("%w: %q", ErrUnknownVoice, voice)
	}
	return voice, nil
}

// Key derives the audio key for text spoken with voice (after defaulting).
func (o *SpeechOrchestrator) Key(text, voice string) (domain.MediaKey, error) {
	resolved, err := o.ResolveVoice(voice)
	if err != nil {
		return domain.MediaKey{}, err
	}
	return domain.AudioKey(text, resolved), nil
}

type speechSubmitRequest struct {
	Model string `json:"model"`
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Parameters struct {
		Voice  string `json:"voice"`
		Format string `json:"format"`
	} `json:"parameters"`
}

type speechTaskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		AudioURL   string `json:"audio_url"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
}

func (r speechTaskResponse) audioURL() string {
	if u := strings.TrimSpace(r.Output.AudioURL); u != "" {
		return u
	}
	for _, result := range r.Output.Results {
		if u := strings.TrimSpace(result.URL); u != "" {
			return u
		}
	}
	return ""
}

// Generate returns the stored audio for (text, voice), submitting and polling a task
// only when the object store does not have it yet.
func (o *SpeechOrchestrator) Generate(ctx context.Context, text, voice string) (domain.MediaAsset, error) {
	text = strings.TrimSpace(text)
	resolved, err := o.ResolveVoice(voice)
	if err != nil {
		return domain.MediaAsset{}, err
	}
	key := domain.AudioKey(text, resolved)
	if text == "" {
		return domain.MediaAsset{}, generationError(key, "validate", errors.New("empty text"))
	}
	if len([]rune(text)) > maxSpeechRunes {
		return domain.MediaAsset{}, ErrTextTooLong
	}
	if asset, ok := o.store.lookup(ctx, key); ok {
		asset.Subject = text
		return asset, nil
	}

	started := o.store.now()
	asset, err := o.generate(ctx, text, resolved, key)
	o.store.record(ctx, key, started, err)
	if err != nil {
		return domain.MediaAsset{}, err
	}
	asset.Subject = text
	return asset, nil
}

func (o *SpeechOrchestrator) generate(ctx context.Context, text, voice string, key domain.MediaKey) (domain.MediaAsset, error) {
	if o.endpoint == "" || strings.TrimSpace(o.cfg.APIKey) == "" {
		return domain.MediaAsset{}, generationError(key, "submit", ErrBackendNotConfigured)
	}

	var body speechSubmitRequest
	body.Model = o.cfg.Model
	body.Input.Text = text
	body.Parameters.Voice = voice
	body.Parameters.Format = "mp3"

	var submitted speechTaskResponse
	if err := o.backend.doJSON(ctx, "speech submit", http.MethodPost, o.endpoint+"/services/audio/tts/synthesis", body, &submitted); err != nil {
		return domain.MediaAsset{}, generationError(key, "submit", err)
	}
	taskID := strings.TrimSpace(submitted.Output.TaskID)
	if taskID == "" {
		return domain.MediaAsset{}, generationError(key, "submit", ErrNoJobID)
	}
	taskURL := o.endpoint + "/tasks/" + url.PathEscape(taskID)

	var audioURL string
	polls, err := o.poller.run(ctx, taskID, func(ctx context.Context) (bool, error) {
		var task speechTaskResponse
		if err := o.backend.doJSON(ctx, "speech status", http.MethodGet, taskURL, nil, &task); err != nil {
			return false, err
		}
		switch strings.ToUpper(strings.TrimSpace(task.Output.TaskStatus)) {
		case SpeechStatusSucceeded:
			audioURL = task.audioURL()
			if audioURL == "" {
				return false, ErrEmptyArtifact
			}
			return true, nil
		case SpeechStatusFailed, SpeechStatusCanceled, SpeechStatusUnknown:
			reason := strings.TrimSpace(task.Output.Message)
			if reason == "" {
				reason = strings.ToLower(task.Output.TaskStatus)
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

	data, err := o.backend.download(ctx, "speech fetch", audioURL, false)
	if err != nil {
		return domain.MediaAsset{}, generationError(key, "fetch", err)
	}
	return o.store.persist(ctx, key, data)
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/httpx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/requestctx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

const (
	maxSpeechRequestBody = 32 * 1024
	multipartOverhead    = 64 * 1024
	detectFormField      = "image"
	streamMode           = "stream"
)

// MediaHandlers serves stored media and the on-demand speech and detection endpoints.
type MediaHandlers struct {
	media     services.MediaService
	detection services.DetectionService
	maxUpload int64
}

// MediaOption customises media handlers.
type MediaOption func(*MediaHandlers)

// WithMaxUploadBytes bounds the image accepted by /detect-object.
func WithMaxUploadBytes(limit int64) MediaOption {
	return func(h *MediaHandlers) {
		if limit > 0 {
			h.maxUpload = limit
		}
	}
}

// NewMediaHandlers constructs media handlers.
func NewMediaHandlers(media services.MediaService, detection services.DetectionService, opts ...MediaOption) *MediaHandlers {
	h := &MediaHandlers{
		media:     media,
		detection: detection,
		maxUpload: services.MaxDetectionImageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the read endpoints.
func (h *MediaHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/images/{key}", h.serve(domain.MediaImage, true))
	r.Get("/videos/{key}", h.serve(domain.MediaVideo, true))
	r.Get("/audio/{key}", h.serve(domain.MediaAudio, false))
}

// GenerationRoutes registers the endpoints that call model backends.
func (h *MediaHandlers) GenerationRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/generate-speech", h.generateSpeech)
	r.Post("/detect-object", h.detectObject)
}

type signedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *MediaHandlers) serve(kind domain.MediaKind, streamable bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.media == nil {
			httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
			return
		}

		key, ok := domain.ParseMediaKey(kind, chi.URLParam(r, "key"))
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid media key", http.StatusBadRequest))
			return
		}

		if streamable && strings.EqualFold(r.URL.Query().Get("mode"), streamMode) {
			h.stream(w, r, key)
			return
		}

		signed, err := h.media.SignedURL(ctx, key)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		resp := signedURLResponse{URL: signed.URL}
		if !signed.ExpiresAt.IsZero() {
			resp.ExpiresAt = signed.ExpiresAt.UTC().Format(time.RFC3339)
		}
		httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *MediaHandlers) stream(w http.ResponseWriter, r *http.Request, key domain.MediaKey) {
	ctx := r.Context()
	reader, object, err := h.media.Open(ctx, key)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer reader.Close()

	header := w.Header()
	header.Set("Content-Type", object.ContentType)
	if object.Size > 0 {
		header.Set("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	if !object.UpdatedAt.IsZero() {
		header.Set("Last-Modified", object.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	header.Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		requestctx.Logger(ctx).Warn("media stream interrupted", zap.String("key", key.String()), zap.Error(err))
	}
}

type generateSpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type generateSpeechResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *MediaHandlers) generateSpeech(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.media == nil {
		httpx.WriteError(ctx, w, httpx.NewError("media_service_unavailable", "media service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req generateSpeechRequest
	if err := httpx.DecodeJSON(r, maxSpeechRequestBody, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "text is required", http.StatusBadRequest))
		return
	}

	result, err := h.media.GenerateSpeech(ctx, services.GenerateSpeechCommand{Text: req.Text, Voice: req.Voice})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := generateSpeechResponse{URL: result.URL, Key: result.Key.FileName()}
	if !result.ExpiresAt.IsZero() {
		resp.ExpiresAt = result.ExpiresAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type detectObjectResponse struct {
	DetectedItem string `json:"detected_item"`
}

func (h *MediaHandlers) detectObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.detection == nil {
		httpx.WriteError(ctx, w, httpx.NewError("detection_service_unavailable", "detection service is unavailable", http.StatusServiceUnavailable))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "image too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form with an image file is required", http.StatusBadRequest))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(detectFormField)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "image file is required", http.StatusBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read image", http.StatusBadRequest))
		return
	}
	if int64(len(data)) > h.maxUpload {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", fmt.Sprintf("image exceeds %d bytes", h.maxUpload), http.StatusRequestEntityTooLarge))
		return
	}
	if len(data) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "image file is empty", http.StatusBadRequest))
		return
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	item, err := h.detection.DetectObject(ctx, services.DetectObjectCommand{ContentType: contentType, Image: data})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, detectObjectResponse{DetectedItem: item})
}

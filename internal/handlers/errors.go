package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/httpx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/requestctx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

// writeServiceError maps the service error taxonomy onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		classErr *services.ClassificationError
		storeErr *services.StoreError
		genErr   *generators.GenerationError
	)

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", err.Error(), http.StatusServiceUnavailable))
	case services.IsJobTimeout(err), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("generation_timeout", err.Error(), http.StatusGatewayTimeout))
	case errors.As(err, &classErr):
		httpx.WriteError(ctx, w, httpx.NewError("classification_failed", err.Error(), http.StatusInternalServerError))
	case errors.As(err, &storeErr):
		if storeErr.Unavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", err.Error(), http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("store_error", err.Error(), http.StatusInternalServerError))
	case errors.As(err, &genErr):
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", err.Error(), http.StatusInternalServerError))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", err.Error(), http.StatusInternalServerError))
	}
}

// writeDecodeError reports a malformed request body.
func writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
	case errors.Is(err, httpx.ErrEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
	}
}

package httpx

import (
	"context"
	"maps"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/requestctx"
)

const (
	maxCodeLen    = 80
	maxMessageLen = 512
	maxIDLen      = 80
)

// Error is the JSON error envelope returned by every endpoint:
// {error, message, status, request_id, trace_id, batch_id, ...details}.
// Reserved envelope fields win over details with the same name.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an envelope. A zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLen),
		Message: clean(message, maxMessageLen),
		Status:  status,
	}
}

// WithDetails returns a copy of e carrying details.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	e.Details = maps.Clone(details)
	return e
}

// WriteError renders err with the correlation ids found on ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}

	payload := make(map[string]any, len(err.Details)+6)
	maps.Copy(payload, err.Details)
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = err.Status

	ids := map[string]string{
		"request_id": middleware.GetReqID(ctx),
		"trace_id":   requestctx.TraceID(ctx),
		"batch_id":   requestctx.BatchID(ctx),
	}
	for field, id := range ids {
		if id = clean(id, maxIDLen); id != "" {
			payload[field] = id
		}
	}

	WriteJSON(w, err.Status, payload)
}

// clean flattens control characters to spaces, trims and truncates to limit bytes.
func clean(value string, limit int) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = strings.ToValidUTF8(value[:limit], "")
	}
	return value
}

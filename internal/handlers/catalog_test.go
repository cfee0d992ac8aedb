package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/generators"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

func newCatalogRouter(svc services.CatalogService) http.Handler {
	h := NewCatalogHandlers(svc)
	return NewRouter(WithReadRoutes(h.Routes), WithGenerationRoutes(h.GenerationRoutes))
}

func TestCatalogHandlers_CategorizeItems_Success(t *testing.T) {
	stub := &stubCatalogService{categorizeResult: services.CategorizeResult{
		BatchID: "batch-1",
		Items:   []services.Item{{Name: "cup", Category: "kitchen", Subcategory: "drinkware", Requests: []string{"drink"}}},
		Images:  map[string]string{"item-cup": "item-cup.png"},
		Videos:  map[string]string{"cup-drink": "cup-drink.mp4"},
	}}
	router := newCatalogRouter(stub)

	for _, path := range []string{"/categorize-items", "/api/categorize-items"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"items":"cup"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
		var body struct {
			Items  []domain.Item     `json:"items"`
			Images map[string]string `json:"images"`
			Videos map[string]string `json:"videos"`
			Audio  map[string]string `json:"audio"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(body.Items) != 1 || body.Items[0].Name != "cup" {
			t.Fatalf("unexpected items %+v", body.Items)
		}
		if body.Images["item-cup"] != "item-cup.png" || body.Videos["cup-drink"] != "cup-drink.mp4" {
			t.Fatalf("unexpected mappings %v %v", body.Images, body.Videos)
		}
		if body.Audio == nil {
			t.Fatalf("expected audio map to be present")
		}
	}
	if stub.categorizeCmd.Items != "cup" {
		t.Fatalf("expected items forwarded, got %q", stub.categorizeCmd.Items)
	}
}

func TestCatalogHandlers_CategorizeItems_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{
			name:   "empty items",
			body:   `{"items":""}`,
			err:    &services.ClassificationError{Op: "validate", Err: fmt.Errorf("%w: no items provided", services.ErrInvalidInput)},
			status: http.StatusBadRequest,
			code:   "invalid_request",
		},
		{name: "malformed json", body: `{"items":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing body", body: ``, status: http.StatusBadRequest, code: "invalid_request"},
		{
			name:   "classification failure",
			body:   `{"items":"cup"}`,
			err:    &services.ClassificationError{Op: "parse", Err: errors.New("not json")},
			status: http.StatusInternalServerError,
			code:   "classification_failed",
		},
		{
			name:   "store failure",
			body:   `{"items":"cup"}`,
			err:    &services.StoreError{Op: "list items", Err: errors.New("boom")},
			status: http.StatusInternalServerError,
			code:   "store_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCatalogRouter(&stubCatalogService{categorizeErr: tc.err})
			req := httptest.NewRequest(http.MethodPost, "/categorize-items", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON error body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error code %q, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCatalogHandlers_StoredData(t *testing.T) {
	stub := &stubCatalogService{snapshot: services.CatalogSnapshot{
		Items:  []services.Item{{Name: "cup"}},
		Images: map[string]string{"item-cup": "item-cup.png"},
	}}
	router := newCatalogRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/stored-data", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if string(body["videos"]) != "{}" || string(body["audio"]) != "{}" {
		t.Fatalf("expected empty objects for missing mappings, got videos=%s audio=%s", body["videos"], body["audio"])
	}

	stub.snapshotErr = &services.StoreError{Op: "list items", Err: errors.New("down")}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stored-data", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestCatalogHandlers_UpdateItemRequests(t *testing.T) {
	stub := &stubCatalogService{updateItem: services.Item{Name: "cup", Requests: []string{"wash"}}}
	router := newCatalogRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/update-item-requests", strings.NewReader(`{"itemName":"cup","requests":["wash"],"videoPath":"cup-wash.mp4"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || !body.Success {
		t.Fatalf("expected success true, got %s", rr.Body.String())
	}
	if stub.updateCmd.VideoPath != "cup-wash.mp4" || stub.updateCmd.ItemName != "cup" {
		t.Fatalf("unexpected command %+v", stub.updateCmd)
	}

	stub.updateErr = &services.NotFoundError{Kind: "item", Key: "plate"}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/update-item-requests", strings.NewReader(`{"itemName":"plate","requests":[]}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	stub.updateErr = fmt.Errorf("%w: requests is required", services.ErrInvalidInput)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/update-item-requests", strings.NewReader(`{"itemName":"cup"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCatalogHandlers_GenerateActionVideo(t *testing.T) {
	stub := &stubCatalogService{videoAsset: services.MediaAsset{Key: domain.VideoKey("cup", "drink")}}
	router := newCatalogRouter(stub)

	req := httptest.NewRequest(http.MethodPost, "/api/generate-action-video", strings.NewReader(`{"itemName":"cup","action":"drink"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body generateActionVideoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.VideoPath != "cup-drink.mp4" {
		t.Fatalf("unexpected response %+v", body)
	}

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "timeout",
			err:    &generators.GenerationError{Kind: domain.MediaVideo, Key: "cup-drink", Op: "poll", Err: &generators.JobTimeoutError{JobID: "job-1", Polls: 300}},
			status: http.StatusGatewayTimeout,
		},
		{
			name:   "generation failure",
			err:    &generators.GenerationError{Kind: domain.MediaVideo, Key: "cup-drink", Op: "submit", Err: generators.ErrNoJobID},
			status: http.StatusInternalServerError,
		},
		{
			name:   "invalid input",
			err:    fmt.Errorf("%w: itemName and action are required", services.ErrInvalidInput),
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub.videoErr = tc.err
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate-action-video", strings.NewReader(`{"itemName":"cup","action":"drink"}`)))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

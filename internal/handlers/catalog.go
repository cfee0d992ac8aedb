package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/httpx"
	"github.com/calvinseptyanto-clone/what-i-meant/internal/services"
)

const maxCatalogRequestBody = 64 * 1024

// CatalogHandlers exposes the batch categorisation and catalog maintenance endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers endpoints that only touch stored data.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stored-data", h.storedData)
	r.Post("/update-item-requests", h.updateItemRequests)
}

// GenerationRoutes registers endpoints that invoke generation backends.
func (h *CatalogHandlers) GenerationRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/categorize-items", h.categorizeItems)
	r.Post("/generate-action-video", h.generateActionVideo)
}

type categorizeRequest struct {
	Items string `json:"items"`
}

type categorizeResponse struct {
	BatchID  string                       `json:"batchId"`
	Items    []services.Item              `json:"items"`
	Images   map[string]string            `json:"images"`
	Videos   map[string]string            `json:"videos"`
	Audio    map[string]string            `json:"audio"`
	Failures []services.GenerationFailure `json:"failures,omitempty"`
}

func (h *CatalogHandlers) categorizeItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req categorizeRequest
	if err := httpx.DecodeJSON(r, maxCatalogRequestBody, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	result, err := h.catalog.CategorizeItems(ctx, services.CategorizeItemsCommand{Items: req.Items})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := categorizeResponse{
		BatchID:  result.BatchID,
		Items:    result.Items,
		Images:   nonNilMap(result.Images),
		Videos:   nonNilMap(result.Videos),
		Audio:    nonNilMap(result.Audio),
		Failures: result.Failures,
	}
	if resp.Items == nil {
		resp.Items = []services.Item{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandlers) storedData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	snapshot, err := h.catalog.Snapshot(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if snapshot.Items == nil {
		snapshot.Items = []services.Item{}
	}
	snapshot.Images = nonNilMap(snapshot.Images)
	snapshot.Videos = nonNilMap(snapshot.Videos)
	snapshot.Audio = nonNilMap(snapshot.Audio)
	httpx.WriteJSON(w, http.StatusOK, snapshot)
}

type updateItemRequestsRequest struct {
	ItemName  string   `json:"itemName"`
	Requests  []string `json:"requests"`
	VideoPath string   `json:"videoPath,omitempty"`
}

type updateItemRequestsResponse struct {
	Success bool          `json:"success"`
	Item    services.Item `json:"item"`
}

func (h *CatalogHandlers) updateItemRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateItemRequestsRequest
	if err := httpx.DecodeJSON(r, maxCatalogRequestBody, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	item, err := h.catalog.UpdateItemRequests(ctx, services.UpdateItemRequestsCommand{
		ItemName:  req.ItemName,
		Requests:  req.Requests,
		VideoPath: req.VideoPath,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updateItemRequestsResponse{Success: true, Item: item})
}

type generateActionVideoRequest struct {
	ItemName string `json:"itemName"`
	Action   string `json:"action"`
}

type generateActionVideoResponse struct {
	Success   bool   `json:"success"`
	VideoPath string `json:"videoPath"`
}

func (h *CatalogHandlers) generateActionVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req generateActionVideoRequest
	if err := httpx.DecodeJSON(r, maxCatalogRequestBody, &req); err != nil {
		writeDecodeError(ctx, w, err)
		return
	}

	asset, err := h.catalog.GenerateActionVideo(ctx, services.GenerateActionVideoCommand{
		ItemName: req.ItemName,
		Action:   req.Action,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, generateActionVideoResponse{Success: true, VideoPath: asset.Key.FileName()})
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

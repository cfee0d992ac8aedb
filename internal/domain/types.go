package domain

import (
	"time"
)

// Item is one physical object in the catalog. Name is the identity; the remaining fields
// are replaced wholesale on every classification pass that mentions the item.
type Item struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Requests    []string `json:"requests"`
}

// Apply overwrites every field that update supplies onto i and returns the result.
// Empty strings and a nil request list count as not supplied. Name is never changed.
func (i Item) Apply(update Item) Item {
	if update.Category != "" {
		i.Category = update.Category
	}
	if update.Subcategory != "" {
		i.Subcategory = update.Subcategory
	}
	if update.Requests != nil {
		i.Requests = make([]string, len(update.Requests))
		copy(i.Requests, update.Requests)
	}
	return i
}

// AssetStatus tracks generation progress for a media asset.
type AssetStatus string

const (
	AssetStatusReady  AssetStatus = "ready"
	AssetStatusFailed AssetStatus = "failed"
)

// MediaAsset records where a generated artifact lives in the object store.
type MediaAsset struct {
	Key      MediaKey
	Location string
	Status   AssetStatus
	Subject  string
	// Label is the descriptor clients look the asset up by, e.g. "item-coffee mug".
	Label     string
	CreatedAt time.Time
}

// CatalogSnapshot is the aggregate returned to callers. It is rebuilt from the catalog
// store and the media registry on every read; the maps go from the descriptor label
// ("item-coffee mug", "water-need refill") to the file name served by
// GET /{images|videos|audio}/{file}.
type CatalogSnapshot struct {
	Items  []Item            `json:"items"`
	Images map[string]string `json:"images"`
	Videos map[string]string `json:"videos"`
	Audio  map[string]string `json:"audio"`
}

// NewCatalogSnapshot returns a snapshot with non-nil collections so it always encodes
// as arrays and objects.
func NewCatalogSnapshot() CatalogSnapshot {
	return CatalogSnapshot{
		Items:  []Item{},
		Images: map[string]string{},
		Videos: map[string]string{},
		Audio:  map[string]string{},
	}
}

// Add records key under label in the mapping that matches its kind. An empty label
// falls back to the key name.
func (s *CatalogSnapshot) Add(label string, key MediaKey) {
	if label == "" {
		label = key.Name
	}
	switch key.Kind {
	case MediaImage:
		s.Images[label] = key.FileName()
	case MediaVideo:
		s.Videos[label] = key.FileName()
	case MediaAudio:
		s.Audio[label] = key.FileName()
	}
}

// Labels maps the key names derivable from items to their descriptor labels. It lets a
// snapshot label assets recorded without one.
func Labels(items []Item) map[string]string {
	labels := make(map[string]string, len(items)*3)
	for _, item := range items {
		labels[ItemImageKey(item.Name).Name] = ItemImageLabel(item.Name)
		for _, action := range item.Requests {
			labels[VideoKey(item.Name, action).Name] = VideoLabel(item.Name, action)
		}
		if item.Category == "" {
			continue
		}
		labels[CategoryImageKey(item.Category).Name] = CategoryImageLabel(item.Category)
		if item.Subcategory != "" {
			labels[SubcategoryImageKey(item.Category, item.Subcategory).Name] = SubcategoryImageLabel(item.Category, item.Subcategory)
		}
	}
	return labels
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

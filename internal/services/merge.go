package services

import (
	"slices"

	domain "github.com/calvinseptyanto-clone/what-i-meant/internal/domain"
)

// MergeItems applies updates onto existing by normalized name. Known items keep their
// position and take every field the update supplies; unknown names are appended in
// input order. Duplicate names within updates fold into a single record.
func MergeItems(existing, updates []Item) []Item {
	merged := make([]Item, 0, len(existing)+len(updates))
	index := make(map[string]int, len(existing)+len(updates))

	for _, item := range existing {
		id := domain.NormalizeName(item.Name)
		if pos, ok := index[id]; ok {
			merged[pos] = merged[pos].Apply(item)
			continue
		}
		item.Requests = slices.Clone(item.Requests)
		index[id] = len(merged)
		merged = append(merged, item)
	}

	for _, update := range updates {
		id := domain.NormalizeName(update.Name)
		if id == "" {
			continue
		}
		if pos, ok := index[id]; ok {
			merged[pos] = merged[pos].Apply(update)
			continue
		}
		index[id] = len(merged)
		merged = append(merged, Item{Name: update.Name}.Apply(update))
	}
	return merged
}

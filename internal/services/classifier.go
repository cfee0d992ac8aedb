package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/textutil"
)

const classifierSystemPrompt = `Generate a JSON structure that categorizes the following items into appropriate categories and subcategories. Each item should also include up to 1 common requests or assistance needs that an aphasia patient might want to communicate to caregivers regarding this item. Each item should be organized in this format:
{
  "items": [
    {
      "name": "item name",
      "category": "main category",
      "subcategory": "specific subcategory",
      "requests": ["request1"]
    },
    ...
  ]
}

For example, if the item is "water", the entry would be:
{
  "name": "water",
  "category": "food and drinks",
  "subcategory": "beverages",
  "requests": ["need refill"]
}

Process the following items and strictly output in JSON format only without any explanation:`

const maxClassifierInput = 8000

var errEmptyItems = errors.New("no items provided")

// TaxonomyClassifier asks the language model to categorise raw item text.
type TaxonomyClassifier struct {
	completer TextCompleter
}

// NewTaxonomyClassifier wires the completion client.
func NewTaxonomyClassifier(completer TextCompleter) (*TaxonomyClassifier, error) {
	if completer == nil {
		return nil, errors.New("taxonomy classifier: completer is required")
	}
	return &TaxonomyClassifier{completer: completer}, nil
}

// Classify issues a single completion call. Any failure is a ClassificationError.
func (c *TaxonomyClassifier) Classify(ctx context.Context, raw string) ([]Item, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ClassificationError{Op: "validate", Err: fmt.Errorf("%w: %v", ErrInvalidInput, errEmptyItems)}
	}
	if len([]rune(raw)) > maxClassifierInput {
		return nil, &ClassificationError{Op: "validate", Err: fmt.Errorf("%w: items exceed %d characters", ErrInvalidInput, maxClassifierInput)}
	}

	content, err := c.completer.CompleteText(ctx, classifierSystemPrompt, raw)
	if err != nil {
		return nil, &ClassificationError{Op: "complete", Err: err}
	}
	items, err := ParseTaxonomy(content)
	if err != nil {
		return nil, &ClassificationError{Op: "parse", Err: err}
	}
	return items, nil
}

type taxonomyPayload struct {
	Items []taxonomyEntry `json:"items"`
}

type taxonomyEntry struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Requests    []string `json:"requests"`
}

// ParseTaxonomy decodes model output after removing an optional Markdown code fence.
// Both {"items": [...]} and a bare array are accepted. Valid JSON without any named
// entries yields an empty slice.
func ParseTaxonomy(content string) ([]Item, error) {
	body := stripCodeFence(content)
	if body == "" {
		return nil, errors.New("empty model output")
	}

	var entries []taxonomyEntry
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &entries); err != nil {
			return nil, fmt.Errorf("decode taxonomy: %w", err)
		}
	} else {
		var payload taxonomyPayload
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			return nil, fmt.Errorf("decode taxonomy: %w", err)
		}
		entries = payload.Items
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		name := textutil.CleanText(entry.Name)
		if name == "" {
			continue
		}
		item := Item{
			Name:        name,
			Category:    textutil.CleanText(entry.Category),
			Subcategory: textutil.CleanText(entry.Subcategory),
		}
		// an omitted list leaves the stored requests alone during merge
		if entry.Requests != nil {
			item.Requests = textutil.CleanList(entry.Requests)
		}
		items = append(items, item)
	}
	return items, nil
}

func stripCodeFence(content string) string {
	body := strings.TrimSpace(content)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		// drop the info string ("json", "JSON", ...)
		if info := strings.TrimSpace(body[:newline]); !strings.ContainsAny(info, "{[") {
			body = body[newline+1:]
		}
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

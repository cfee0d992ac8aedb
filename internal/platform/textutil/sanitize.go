// Package textutil cleans free text that arrives from clients or from model output
// before it is stored or used to build prompts and keys.
package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// CleanText removes any markup, decodes entities and collapses whitespace.
func CleanText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(value))
	return strings.Join(strings.Fields(stripped), " ")
}

// CleanList applies CleanText to every entry and drops entries that end up empty.
// Order is preserved. A nil or fully empty input yields an empty, non-nil slice.
func CleanList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := CleanText(value); cleaned != "" {
			result = append(result, cleaned)
		}
	}
	return result
}

// Truncate shortens value to at most limit runes.
func Truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

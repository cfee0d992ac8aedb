package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MediaKind enumerates the generated artifact types.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Prefix is the bucket folder for the kind.
func (k MediaKind) Prefix() string {
	switch k {
	case MediaImage:
		return "images"
	case MediaVideo:
		return "videos"
	case MediaAudio:
		return "audio"
	}
	return ""
}

// Extension is the file suffix stored artifacts of this kind carry.
func (k MediaKind) Extension() string {
	switch k {
	case MediaImage:
		return ".png"
	case MediaVideo:
		return ".mp4"
	case MediaAudio:
		return ".mp3"
	}
	return ""
}

// ContentType is the MIME type used for uploads of this kind.
func (k MediaKind) ContentType() string {
	switch k {
	case MediaImage:
		return "image/png"
	case MediaVideo:
		return "video/mp4"
	case MediaAudio:
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// Valid reports whether k is a known kind.
func (k MediaKind) Valid() bool {
	return k.Prefix() != ""
}

// MediaKey identifies one artifact. Name is the dedup key: it is derived purely from
// the kind and the identifying strings, so the same inputs always address the same object.
type MediaKey struct {
	Kind MediaKind
	Name string
}

// FileName is Name plus the kind's extension.
func (k MediaKey) FileName() string {
	return k.Name + k.Kind.Extension()
}

// ObjectPath is the bucket object path, e.g. "images/item-cup.png".
func (k MediaKey) ObjectPath() string {
	return k.Kind.Prefix() + "/" + k.FileName()
}

func (k MediaKey) String() string {
	return string(k.Kind) + ":" + k.Name
}

const audioSlugRunes = 32

var lower = cases.Lower(language.Und)

// NormalizeName canonicalises a free-text identifier: Unicode NFKC, lower case, trimmed,
// inner whitespace collapsed to single spaces. Item identity uses this form.
func NormalizeName(value string) string {
	value = norm.NFKC.String(value)
	value = lower.String(value)
	return strings.Join(strings.Fields(value), " ")
}

// escapeSegment makes a normalised name safe to join with "-": the characters that
// carry meaning in keys are percent-escaped first, then spaces become "_". Because a
// literal "_" or "-" can never survive escaping, the encoding is injective.
var segmentEscaper = strings.NewReplacer(
	"%", "%25",
	"-", "%2d",
	"_", "%5f",
	"/", "%2f",
	"\\", "%5c",
	".", "%2e",
	" ", "_",
)

func keySegment(value string) string {
	return segmentEscaper.Replace(NormalizeName(value))
}

func joinKey(parts ...string) string {
	segments := make([]string, len(parts))
	for i, part := range parts {
		segments[i] = keySegment(part)
	}
	return strings.Join(segments, "-")
}

// ItemID is the catalog document id for an item name.
func ItemID(name string) string {
	return keySegment(name)
}

// ItemImageKey addresses the representative image of an item: "item-<name>".
func ItemImageKey(item string) MediaKey {
	return MediaKey{Kind: MediaImage, Name: "item-" + keySegment(item)}
}

// CategoryImageKey addresses a category image: "category-<category>".
func CategoryImageKey(category string) MediaKey {
	return MediaKey{Kind: MediaImage, Name: "category-" + keySegment(category)}
}

// SubcategoryImageKey addresses a subcategory image: "subcategory-<category>-<subcategory>".
func SubcategoryImageKey(category, subcategory string) MediaKey {
	return MediaKey{Kind: MediaImage, Name: "subcategory-" + joinKey(category, subcategory)}
}

// VideoKey addresses the action video for an item: "<item>-<action>".
func VideoKey(item, action string) MediaKey {
	return MediaKey{Kind: MediaVideo, Name: joinKey(item, action)}
}

// Labels keep the names as stored so clients can look entries up by the item,
// category and request text they already hold.

func ItemImageLabel(item string) string {
	return "item-" + strings.TrimSpace(item)
}

func CategoryImageLabel(category string) string {
	return "category-" + strings.TrimSpace(category)
}

func SubcategoryImageLabel(category, subcategory string) string {
	return "subcategory-" + strings.TrimSpace(category) + "-" + strings.TrimSpace(subcategory)
}

func VideoLabel(item, action string) string {
	return strings.TrimSpace(item) + "-" + strings.TrimSpace(action)
}

// AudioKey addresses synthesized speech. Long text is truncated for readability and a
// hash over the voice and the full text keeps the key unique and bounded.
func AudioKey(text, voice string) MediaKey {
	normalized := NormalizeName(text)
	slug := normalized
	if utf8.RuneCountInString(slug) > audioSlugRunes {
		slug = strings.TrimSpace(string([]rune(slug)[:audioSlugRunes]))
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(voice) + "\x00" + normalized))
	return MediaKey{
		Kind: MediaAudio,
		Name: fmt.Sprintf("%s-%s", keySegment(slug), hex.EncodeToString(sum[:6])),
	}
}

// ParseMediaKey validates a key taken from a request path. The kind's extension is
// optional so both "item-cup" and "item-cup.png" resolve to the same object.
func ParseMediaKey(kind MediaKind, raw string) (MediaKey, bool) {
	if !kind.Valid() {
		return MediaKey{}, false
	}
	name := strings.TrimSuffix(strings.TrimSpace(raw), kind.Extension())
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return MediaKey{}, false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return MediaKey{}, false
		}
	}
	return MediaKey{Kind: kind, Name: name}, true
}

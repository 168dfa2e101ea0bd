package types

import "strings"

// Overrides are page-level manual SEO values that outrank suggestions.
type Overrides struct {
	Title       string
	Description string
	// Locked holds lower-cased meta names/properties suggestions must not touch.
	Locked map[string]struct{}
}

// OutranksTitle reports whether a local title exists.
func (o Overrides) OutranksTitle() bool {
	return strings.TrimSpace(o.Title) != ""
}

// OutranksMeta reports whether a meta replacement keyed by name/property is
// shadowed by a local value.
func (o Overrides) OutranksMeta(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	if _, ok := o.Locked[key]; ok {
		return true
	}
	if kind, ok := ParseDescriptionKind(key); ok && kind == DescriptionMeta {
		return strings.TrimSpace(o.Description) != ""
	}
	return false
}

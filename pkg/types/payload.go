package types

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// ReplacementKind identifies which head element a replacement targets.
type ReplacementKind string

const (
	KindTitle         ReplacementKind = "title"
	KindMeta          ReplacementKind = "meta"
	KindCanonicalLink ReplacementKind = "canonical_link"
)

// UnmarshalJSON accepts the spellings the upstream API has used over time
// ("Title", "meta", "CanonicalLink", "canonical", "link"). Any other string
// decodes verbatim and is reported by Known as unknown.
func (k *ReplacementKind) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("replacement kind must be a string, got %s", data)
	}
	raw := string(data[1 : len(data)-1])
	switch strings.ToLower(strings.ReplaceAll(raw, "_", "")) {
	case "title":
		*k = KindTitle
	case "meta":
		*k = KindMeta
	case "canonicallink", "canonical", "link":
		*k = KindCanonicalLink
	default:
		*k = ReplacementKind(raw)
	}
	return nil
}

// Known reports whether k is a kind the mutation engine applies.
func (k ReplacementKind) Known() bool {
	switch k {
	case KindTitle, KindMeta, KindCanonicalLink:
		return true
	}
	return false
}

// HeaderReplacement is one recommended change to a head element.
type HeaderReplacement struct {
	Kind             ReplacementKind `json:"kind"`
	Name             string          `json:"name,omitempty"`
	Property         string          `json:"property,omitempty"`
	RecommendedValue string          `json:"recommended_value"`
}

// Key returns the name or property a meta replacement matches on.
func (r HeaderReplacement) Key() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Property
}

// HeadingSubstitution rewrites the text of the first heading whose
// trimmed text equals CurrentText.
type HeadingSubstitution struct {
	TagType         string `json:"tag_type"`
	CurrentText     string `json:"current_text"`
	RecommendedText string `json:"recommended_text"`
}

type BodySubstitutions struct {
	Images   map[string]string     `json:"images,omitempty"`
	Headings []HeadingSubstitution `json:"headings,omitempty"`
	Links    map[string]string     `json:"links,omitempty"`
}

// Payload is the suggestion set the upstream service returns for one route.
// Values are treated as immutable once decoded.
type Payload struct {
	HeaderReplacements      []HeaderReplacement `json:"header_replacements,omitempty"`
	HeaderHTMLInsertion     string              `json:"header_html_insertion,omitempty"`
	BodyTopHTMLInsertion    string              `json:"body_top_html_insertion,omitempty"`
	BodyBottomHTMLInsertion string              `json:"body_bottom_html_insertion,omitempty"`
	FooterHTMLInsertion     string              `json:"footer_html_insertion,omitempty"`
	BodySubstitutions       BodySubstitutions   `json:"body_substitutions"`
}

// IsEmpty reports whether the payload carries no suggestions at all.
func (p *Payload) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.HeaderReplacements) == 0 &&
		strings.TrimSpace(p.HeaderHTMLInsertion) == "" &&
		strings.TrimSpace(p.BodyTopHTMLInsertion) == "" &&
		strings.TrimSpace(p.BodyBottomHTMLInsertion) == "" &&
		strings.TrimSpace(p.FooterHTMLInsertion) == "" &&
		len(p.BodySubstitutions.Images) == 0 &&
		len(p.BodySubstitutions.Headings) == 0 &&
		len(p.BodySubstitutions.Links) == 0
}

// DropUnknown removes header replacements of unknown kind and returns
// their kinds.
func (p *Payload) DropUnknown() []string {
	if p == nil {
		return nil
	}
	var dropped []string
	kept := p.HeaderReplacements[:0]
	for _, r := range p.HeaderReplacements {
		if r.Kind.Known() {
			kept = append(kept, r)
			continue
		}
		dropped = append(dropped, string(r.Kind))
	}
	p.HeaderReplacements = kept
	return dropped
}

// Title returns the first title replacement, if any.
func (p *Payload) Title() (HeaderReplacement, bool) {
	if p == nil {
		return HeaderReplacement{}, false
	}
	for _, r := range p.HeaderReplacements {
		if r.Kind == KindTitle {
			return r, true
		}
	}
	return HeaderReplacement{}, false
}

// BlockingFlags derives which SEO fields the payload supplies.
func (p *Payload) BlockingFlags() BlockingFlags {
	flags := BlockingFlags{}
	if p == nil {
		return flags
	}
	for _, r := range p.HeaderReplacements {
		switch r.Kind {
		case KindTitle:
			if r.RecommendedValue != "" {
				flags.HasTitle = true
			}
		case KindMeta:
			if kind, ok := ParseDescriptionKind(r.Key()); ok {
				flags.addDescription(kind)
			}
		}
	}
	return flags
}

// DescriptionKind names a tag that carries a page description.
type DescriptionKind string

const (
	DescriptionMeta    DescriptionKind = "description"
	DescriptionOG      DescriptionKind = "og:description"
	DescriptionTwitter DescriptionKind = "twitter:description"
)

// ParseDescriptionKind maps a meta name/property onto a DescriptionKind.
func ParseDescriptionKind(key string) (DescriptionKind, bool) {
	switch DescriptionKind(strings.ToLower(strings.TrimSpace(key))) {
	case DescriptionMeta:
		return DescriptionMeta, true
	case DescriptionOG:
		return DescriptionOG, true
	case DescriptionTwitter:
		return DescriptionTwitter, true
	}
	return "", false
}

// BlockingFlags tells other tag sources which fields this payload will own,
// so they can suppress their own copies.
type BlockingFlags struct {
	HasTitle            bool
	DescriptionTagKinds map[DescriptionKind]struct{}
}

func (f *BlockingFlags) addDescription(kind DescriptionKind) {
	if f.DescriptionTagKinds == nil {
		f.DescriptionTagKinds = make(map[DescriptionKind]struct{})
	}
	f.DescriptionTagKinds[kind] = struct{}{}
}

// BlocksDescription reports whether the given description kind is supplied.
func (f BlockingFlags) BlocksDescription(kind DescriptionKind) bool {
	_, ok := f.DescriptionTagKinds[kind]
	return ok
}

// DescriptionList returns the supplied description kinds in stable order.
func (f BlockingFlags) DescriptionList() []string {
	out := make([]string, 0, len(f.DescriptionTagKinds))
	for k := range f.DescriptionTagKinds {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Any reports whether at least one field is blocked.
func (f BlockingFlags) Any() bool {
	return f.HasTitle || len(f.DescriptionTagKinds) > 0
}

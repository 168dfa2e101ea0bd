package mutation

import (
	"html"
	"strings"

	"github.com/metasync/seo-gateway/pkg/markup"
	"github.com/metasync/seo-gateway/pkg/types"
)

// escapeText escapes v for text content without double-escaping values
// that arrive already escaped.
func escapeText(v string) string {
	return html.EscapeString(html.UnescapeString(v))
}

func insertHeader(doc *markup.Document, p *types.Payload, opts Options) error {
	head := doc.First("head")
	if head == nil || !head.Closed() {
		return errNoHead
	}

	var edits []markup.Edit
	if !opts.AMP {
		if v, _ := head.Attr(MarkerAttr); v != MarkerValue || head.AttrCount(MarkerAttr) != 1 {
			edits = append(edits, head.SetAttr(MarkerAttr, MarkerValue))
		}
	}

	fragment := strings.TrimSpace(p.HeaderHTMLInsertion)
	if fragment != "" && !inserted(doc, sentinelHead) {
		edits = append(edits, markup.Insert(head.InnerEnd, sentinelHead.before(fragment)))
	}

	doc.Apply(edits...)
	return nil
}

// documentTitles returns <title> elements that are not part of inline SVG.
func documentTitles(doc *markup.Document) []*markup.Element {
	svgs := doc.Elements("svg")
	return doc.Find("title", func(t *markup.Element) bool {
		for _, svg := range svgs {
			if markup.Contains(svg, t) {
				return false
			}
		}
		return true
	})
}

func replaceTitle(doc *markup.Document, p *types.Payload, opts Options) error {
	if opts.Overrides.OutranksTitle() {
		return nil
	}
	r, ok := p.Title()
	if !ok || strings.TrimSpace(r.RecommendedValue) == "" {
		return nil
	}
	value := escapeText(strings.TrimSpace(r.RecommendedValue))

	titles := documentTitles(doc)
	if len(titles) == 0 {
		head := doc.First("head")
		if head == nil {
			return errNoHead
		}
		doc.Apply(markup.Insert(head.End, "<title>"+value+"</title>"))
		return nil
	}

	var edits []markup.Edit
	first := titles[0]
	if !first.Closed() {
		// An unterminated title swallows the rest of the page; leave it.
		return errImplausible
	}
	if doc.Inner(first) != value {
		edits = append(edits, first.SetInner(value))
	}
	for _, dup := range titles[1:] {
		edits = append(edits, dup.Remove())
	}
	doc.Apply(edits...)
	return nil
}

// metaMatches reports whether a meta tag is keyed by name or property.
func metaMatches(key string) func(*markup.Element) bool {
	return func(e *markup.Element) bool {
		if v, ok := e.Attr("name"); ok && strings.EqualFold(strings.TrimSpace(v), key) {
			return true
		}
		if v, ok := e.Attr("property"); ok && strings.EqualFold(strings.TrimSpace(v), key) {
			return true
		}
		return false
	}
}

func replaceMeta(doc *markup.Document, p *types.Payload, opts Options) error {
	for _, r := range p.HeaderReplacements {
		if r.Kind != types.KindMeta {
			continue
		}
		key := strings.TrimSpace(r.Key())
		if key == "" || opts.Overrides.OutranksMeta(key) {
			continue
		}
		if err := setMeta(doc, r, key); err != nil {
			return err
		}
	}
	return nil
}

func setMeta(doc *markup.Document, r types.HeaderReplacement, key string) error {
	value := html.UnescapeString(r.RecommendedValue)
	matches := doc.Find("meta", metaMatches(key))

	if len(matches) == 0 {
		head := doc.First("head")
		if head == nil {
			return errNoHead
		}
		attr := "name"
		if r.Name == "" {
			attr = "property"
		}
		tag := markup.StartTag("meta", []markup.Attr{
			{Key: attr, Val: key},
			{Key: "content", Val: value},
		}, false)
		doc.Apply(markup.Insert(head.End, tag))
		return nil
	}

	var edits []markup.Edit
	first := matches[0]
	if current, _ := first.Attr("content"); current != value || first.AttrCount("content") != 1 {
		edits = append(edits, first.SetAttr("content", value))
	}
	for _, dup := range matches[1:] {
		edits = append(edits, dup.Remove())
	}
	doc.Apply(edits...)
	return nil
}

func isCanonical(e *markup.Element) bool {
	rel, _ := e.Attr("rel")
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if token == "canonical" {
			return true
		}
	}
	return false
}

// replaceCanonical only rewrites canonical links the page already has.
func replaceCanonical(doc *markup.Document, p *types.Payload, _ Options) error {
	for _, r := range p.HeaderReplacements {
		if r.Kind != types.KindCanonicalLink {
			continue
		}
		href := strings.TrimSpace(html.UnescapeString(r.RecommendedValue))
		if href == "" {
			continue
		}
		var edits []markup.Edit
		for _, link := range doc.Find("link", isCanonical) {
			if current, _ := link.Attr("href"); current != href {
				edits = append(edits, link.SetAttr("href", href))
			}
		}
		doc.Apply(edits...)
	}
	return nil
}

// sentinel is a comment written next to an inserted fragment, on the side
// away from its anchor tag. Later steps may rewrite the fragment's bytes,
// so re-insertion is detected by the sentinel alone.
type sentinel string

const (
	sentinelHead       sentinel = "head"
	sentinelBodyTop    sentinel = "body-top"
	sentinelBodyBottom sentinel = "body-bottom"
	sentinelFooter     sentinel = "footer"
)

func (s sentinel) comment() string {
	return "<!--seo-gateway:" + string(s) + "-->"
}

// before renders the fragment for anchors that follow it, such as </head>.
func (s sentinel) before(fragment string) string {
	return s.comment() + fragment
}

// after renders the fragment for anchors that precede it, such as <body>.
func (s sentinel) after(fragment string) string {
	return fragment + s.comment()
}

func inserted(doc *markup.Document, s sentinel) bool {
	return strings.Contains(doc.String(), s.comment())
}

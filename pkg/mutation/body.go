package mutation

import (
	"html"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/metasync/seo-gateway/pkg/markup"
	"github.com/metasync/seo-gateway/pkg/types"
)

// DefaultMultiViewAttr holds per-device copies of image attributes as JSON,
// e.g. {"desktop":{"alt":"..."},"mobile":{"alt":"..."}}.
const DefaultMultiViewAttr = "data-views"

var viewsJSON = sonic.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// HeadingMarkerAttr tags headings this engine rewrote. Only a tagged
// heading holding the recommended text counts as an applied entry; an
// untagged one is page content.
const HeadingMarkerAttr = "data-seo-heading"

func substituteHeadings(doc *markup.Document, p *types.Payload, _ Options) error {
	for _, h := range p.BodySubstitutions.Headings {
		tag := strings.ToLower(strings.TrimSpace(h.TagType))
		current := strings.TrimSpace(html.UnescapeString(h.CurrentText))
		recommended := strings.TrimSpace(html.UnescapeString(h.RecommendedText))
		if tag == "" || current == "" || recommended == "" || current == recommended {
			continue
		}

		if len(doc.Find(tag, rewrittenTo(doc, recommended))) > 0 {
			continue
		}

		for _, el := range doc.Find(tag, outsideFragments(doc)) {
			if el.Closed() && strings.TrimSpace(doc.Text(el)) == current {
				doc.Apply(
					el.SetAttr(HeadingMarkerAttr, "rewritten"),
					el.SetInner(html.EscapeString(recommended)),
				)
				break
			}
		}
	}
	return nil
}

func rewrittenTo(doc *markup.Document, text string) func(*markup.Element) bool {
	return func(e *markup.Element) bool {
		_, ok := e.Attr(HeadingMarkerAttr)
		return ok && e.Closed() && strings.TrimSpace(doc.Text(e)) == text
	}
}

// outsideFragments excludes elements of body fragments a previous pass
// inserted. Body substitutions run before those insertions, so they must
// not reach into them on a later pass either.
func outsideFragments(doc *markup.Document) func(*markup.Element) bool {
	src := doc.String()
	var spans [][2]int
	if body := doc.First("body"); body != nil {
		if i := strings.Index(src, sentinelBodyTop.comment()); i >= body.End {
			spans = append(spans, [2]int{body.End, i})
		}
	}
	if i := strings.Index(src, sentinelBodyBottom.comment()); i >= 0 {
		if end := doc.LastClosing("body"); end > i {
			spans = append(spans, [2]int{i, end})
		}
	}
	if i := strings.Index(src, sentinelFooter.comment()); i >= 0 {
		if end := doc.LastClosing("html"); end > i {
			spans = append(spans, [2]int{i, end})
		}
	}

	return func(e *markup.Element) bool {
		for _, span := range spans {
			if e.Start >= span[0] && e.Start < span[1] {
				return false
			}
		}
		return true
	}
}

// substituteLinks rewrites every matching href against one snapshot of the
// document, so a mapping a->b followed by b->c never chains.
func substituteLinks(doc *markup.Document, p *types.Payload, _ Options) error {
	links := p.BodySubstitutions.Links
	if len(links) == 0 {
		return nil
	}

	var edits []markup.Edit
	for _, a := range doc.Find("a", outsideFragments(doc)) {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		target, ok := links[href]
		if !ok || target == "" || target == href {
			continue
		}
		edits = append(edits, a.SetAttr("href", target))
	}
	doc.Apply(edits...)
	return nil
}

func substituteImages(doc *markup.Document, p *types.Payload, opts Options) error {
	images := p.BodySubstitutions.Images
	if len(images) == 0 {
		return nil
	}

	var edits []markup.Edit
	for _, img := range doc.Find("img", outsideFragments(doc)) {
		src, ok := img.Attr("src")
		if !ok {
			continue
		}
		alt, ok := images[src]
		alt = strings.TrimSpace(html.UnescapeString(alt))
		if !ok || alt == "" {
			continue
		}

		attrs, changed := imageAttrs(img.Attrs, alt, opts.MultiViewAttr)
		if changed {
			edits = append(edits, img.WithAttrs(attrs))
		}
	}
	doc.Apply(edits...)
	return nil
}

// imageAttrs returns the attribute list with exactly one alt and any
// multi-view JSON brought in line with it.
func imageAttrs(in []markup.Attr, alt, viewsAttr string) ([]markup.Attr, bool) {
	out := make([]markup.Attr, 0, len(in)+1)
	changed := false
	placed := false

	for _, a := range in {
		switch a.Key {
		case "alt":
			if placed {
				changed = true
				continue
			}
			placed = true
			if a.Val != alt {
				changed = true
			}
			out = append(out, markup.Attr{Key: "alt", Val: alt})
		case viewsAttr:
			views, ok := rewriteViews(a.Val, alt)
			if ok && views != a.Val {
				changed = true
				a.Val = views
			}
			out = append(out, a)
		default:
			out = append(out, a)
		}
	}

	if !placed {
		out = append(out, markup.Attr{Key: "alt", Val: alt})
		changed = true
	}
	return out, changed
}

// rewriteViews sets every "alt" in the multi-view document to alt. It
// reports false when the value is not a JSON object.
func rewriteViews(raw, alt string) (string, bool) {
	var views map[string]interface{}
	if err := viewsJSON.UnmarshalFromString(raw, &views); err != nil || views == nil {
		return "", false
	}

	dirty := false
	if _, ok := views["alt"]; ok {
		if views["alt"] != alt {
			views["alt"] = alt
			dirty = true
		}
	}
	for _, v := range views {
		view, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if current, ok := view["alt"]; !ok || current != alt {
			view["alt"] = alt
			dirty = true
		}
	}
	if !dirty {
		return raw, true
	}

	encoded, err := viewsJSON.MarshalToString(views)
	if err != nil {
		return "", false
	}
	return encoded, true
}

func insertBodyTop(doc *markup.Document, p *types.Payload, _ Options) error {
	fragment := strings.TrimSpace(p.BodyTopHTMLInsertion)
	if fragment == "" {
		return nil
	}
	body := doc.First("body")
	if body == nil {
		return errNoBody
	}
	if inserted(doc, sentinelBodyTop) {
		return nil
	}
	doc.Apply(markup.Insert(body.End, sentinelBodyTop.after(fragment)))
	return nil
}

func insertBodyBottom(doc *markup.Document, p *types.Payload, _ Options) error {
	fragment := strings.TrimSpace(p.BodyBottomHTMLInsertion)
	if fragment == "" {
		return nil
	}
	pos := doc.LastClosing("body")
	if pos < 0 {
		return errNoBody
	}
	if inserted(doc, sentinelBodyBottom) {
		return nil
	}
	doc.Apply(markup.Insert(pos, sentinelBodyBottom.before(fragment)))
	return nil
}

func insertFooter(doc *markup.Document, p *types.Payload, _ Options) error {
	fragment := strings.TrimSpace(p.FooterHTMLInsertion)
	if fragment == "" {
		return nil
	}
	pos := doc.LastClosing("html")
	if pos < 0 {
		return errImplausible
	}
	if inserted(doc, sentinelFooter) {
		return nil
	}
	doc.Apply(markup.Insert(pos, sentinelFooter.before(fragment)))
	return nil
}

package mutation

import (
	"net/url"
	"strings"

	"github.com/metasync/seo-gateway/pkg/markup"
	"github.com/metasync/seo-gateway/pkg/types"
)

// IsAMPRequest reports whether the request targets the AMP variant of a page.
func IsAMPRequest(path string, query url.Values) bool {
	p := strings.TrimSuffix(strings.ToLower(path), "/")
	if p == "/amp" || strings.HasSuffix(p, "/amp") {
		return true
	}
	_, ok := query["amp"]
	return ok
}

// IsAMPDocument reports whether the root element declares AMP.
func IsAMPDocument(doc *markup.Document) bool {
	root := doc.First("html")
	if root == nil {
		return false
	}
	for _, a := range root.Attrs {
		if a.Key == "amp" || a.Key == "⚡" {
			return true
		}
	}
	return false
}

// verify is the final cleanup: at most one document title, and no marker
// on AMP pages.
func verify(doc *markup.Document, _ *types.Payload, opts Options) error {
	var edits []markup.Edit

	if titles := documentTitles(doc); len(titles) > 1 {
		for _, dup := range titles[1:] {
			edits = append(edits, dup.Remove())
		}
	}

	if opts.AMP {
		for _, head := range doc.Elements("head") {
			if head.AttrCount(MarkerAttr) > 0 {
				edits = append(edits, head.RemoveAttr(MarkerAttr))
			}
		}
	}

	doc.Apply(edits...)
	return nil
}

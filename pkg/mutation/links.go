package mutation

import (
	"net/url"
	"strings"

	"github.com/metasync/seo-gateway/pkg/markup"
	"github.com/metasync/seo-gateway/pkg/types"
	"github.com/metasync/seo-gateway/pkg/utils"
)

// IsExternal reports whether href points at a host other than the site's.
// Empty, fragment-only, relative and same-host protocol-relative links are
// internal, as are non-navigational schemes such as mailto:.
func IsExternal(href, siteURL string) bool {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}

	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	site := siteHost(siteURL)
	if site == "" {
		return false
	}
	return !utils.SameHost(u.Hostname(), site)
}

func siteHost(siteURL string) string {
	siteURL = strings.TrimSpace(siteURL)
	if siteURL == "" {
		return ""
	}
	if !strings.Contains(siteURL, "://") {
		siteURL = "//" + siteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return utils.NormalizeHost(u.Hostname())
}

// annotateExternalLinks adds rel/target to outbound anchors according to
// the link policy. Existing rel tokens are kept and never duplicated.
func annotateExternalLinks(doc *markup.Document, _ *types.Payload, opts Options) error {
	if !opts.NoFollowExternal && !opts.NewTabExternal {
		return nil
	}

	var edits []markup.Edit
	for _, a := range doc.Elements("a") {
		href, ok := a.Attr("href")
		if !ok || !IsExternal(href, opts.SiteURL) {
			continue
		}

		rel, _ := a.Attr("rel")
		tokens := strings.Fields(rel)
		var want []string
		if opts.NoFollowExternal {
			want = append(want, "nofollow")
		}
		if opts.NewTabExternal {
			want = append(want, "noopener", "noreferrer")
		}
		tokens, relChanged := addTokens(tokens, want)

		attrs := append([]markup.Attr(nil), a.Attrs...)
		changed := false
		if relChanged || a.AttrCount("rel") > 1 {
			attrs = setAttr(attrs, "rel", strings.Join(tokens, " "))
			changed = true
		}
		if opts.NewTabExternal {
			if target, _ := a.Attr("target"); target != "_blank" {
				attrs = setAttr(attrs, "target", "_blank")
				changed = true
			}
		}
		if changed {
			edits = append(edits, a.WithAttrs(attrs))
		}
	}
	doc.Apply(edits...)
	return nil
}

func addTokens(tokens, want []string) ([]string, bool) {
	changed := false
	for _, w := range want {
		found := false
		for _, t := range tokens {
			if strings.EqualFold(t, w) {
				found = true
				break
			}
		}
		if !found {
			tokens = append(tokens, w)
			changed = true
		}
	}
	return tokens, changed
}

// setAttr replaces the first occurrence of key, drops the rest, or appends.
func setAttr(attrs []markup.Attr, key, val string) []markup.Attr {
	out := make([]markup.Attr, 0, len(attrs)+1)
	placed := false
	for _, a := range attrs {
		if a.Key != key {
			out = append(out, a)
			continue
		}
		if !placed {
			out = append(out, markup.Attr{Key: key, Val: val})
			placed = true
		}
	}
	if !placed {
		out = append(out, markup.Attr{Key: key, Val: val})
	}
	return out
}

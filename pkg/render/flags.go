package render

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/metasync/seo-gateway/pkg/types"
)

// Loopback boundary. The re-entrant request carries the marker and the
// blocking flags as query parameters plus an identifying header.
const (
	LoopbackParam         = "seo_loopback"
	BlockTitleParam       = "seo_block_title"
	BlockDescriptionParam = "seo_block_desc"
	InternalFetchHeader   = "X-SEO-Internal-Fetch"
	RequestIDHeader       = "X-Request-ID"
)

// IsLoopback reports whether r was issued by the Http strategy.
func IsLoopback(r *http.Request) bool {
	if r.Header.Get(InternalFetchHeader) == "1" {
		return true
	}
	return r.URL.Query().Get(LoopbackParam) == "1"
}

// FlagsFromRequest decodes the blocking flags a loopback request carries,
// for origin applications that want to suppress their own tags.
func FlagsFromRequest(r *http.Request) types.BlockingFlags {
	q := r.URL.Query()
	flags := types.BlockingFlags{
		HasTitle: q.Get(BlockTitleParam) == "1",
	}
	for _, raw := range strings.Split(q.Get(BlockDescriptionParam), ",") {
		if kind, ok := types.ParseDescriptionKind(raw); ok {
			if flags.DescriptionTagKinds == nil {
				flags.DescriptionTagKinds = make(map[types.DescriptionKind]struct{})
			}
			flags.DescriptionTagKinds[kind] = struct{}{}
		}
	}
	return flags
}

// stripLoopbackParams removes the boundary parameters from a raw query.
func stripLoopbackParams(q url.Values) {
	delete(q, LoopbackParam)
	delete(q, BlockTitleParam)
	delete(q, BlockDescriptionParam)
}

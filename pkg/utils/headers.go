package utils

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
)

// hopByHopHeaders apply to a single connection and are never relayed.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Proxy-Connection":    true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// IsHopByHop reports whether the header must not be forwarded.
func IsHopByHop(name string) bool {
	return hopByHopHeaders[http.CanonicalHeaderKey(name)]
}

// CopyRequestHeaders copies src onto dst, dropping hop-by-hop headers and
// Accept-Encoding so the response body arrives uncompressed.
func CopyRequestHeaders(dst *fasthttp.RequestHeader, src http.Header) {
	for k, values := range src {
		if IsHopByHop(k) || strings.EqualFold(k, "Accept-Encoding") || strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

// CopyResponseHeaders copies a fasthttp response header into dst. Framing
// headers are dropped since the body may be rewritten.
func CopyResponseHeaders(dst http.Header, src *fasthttp.ResponseHeader) {
	src.VisitAll(func(key, value []byte) {
		k := string(key)
		if IsHopByHop(k) || strings.EqualFold(k, "Content-Length") {
			return
		}
		dst.Add(k, string(value))
	})
}

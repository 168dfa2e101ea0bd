// Package overrides supplies page-level manual SEO values that take
// precedence over upstream suggestions.
package overrides

import (
	"context"
	"strings"

	"github.com/metasync/seo-gateway/pkg/suggestions"
	"github.com/metasync/seo-gateway/pkg/types"
)

// Provider looks up the local overrides for a route.
type Provider interface {
	Lookup(ctx context.Context, route string) (types.Overrides, error)
}

// Static serves overrides from memory, keyed by route.
type Static map[string]types.Overrides

// NewStatic normalizes routes and locked keys of the given overrides.
func NewStatic(entries map[string]types.Overrides) Static {
	s := make(Static, len(entries))
	for route, o := range entries {
		if len(o.Locked) > 0 {
			locked := make(map[string]struct{}, len(o.Locked))
			for k := range o.Locked {
				locked[strings.ToLower(strings.TrimSpace(k))] = struct{}{}
			}
			o.Locked = locked
		}
		s[suggestions.NormalizeRoute(route)] = o
	}
	return s
}

func (s Static) Lookup(_ context.Context, route string) (types.Overrides, error) {
	return s[suggestions.NormalizeRoute(route)], nil
}

// None never overrides anything.
var None Provider = Static(nil)

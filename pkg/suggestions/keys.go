package suggestions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/metasync/seo-gateway/pkg/cache"
)

// NormalizeRoute case-folds the route and strips trailing slashes.
func NormalizeRoute(route string) string {
	route = strings.ToLower(strings.TrimSpace(route))
	return strings.TrimRight(route, "/")
}

// RouteHash is the cache key component for a route.
func RouteHash(route string) string {
	sum := sha256.Sum256([]byte(NormalizeRoute(route)))
	return hex.EncodeToString(sum[:16])
}

func suggestionKey(hash string) string { return fmt.Sprintf(cache.SuggestionKeyPattern, hash) }
func staleKey(hash string) string      { return fmt.Sprintf(cache.StaleKeyPattern, hash) }
func lockKey(hash string) string       { return fmt.Sprintf(cache.LockKeyPattern, hash) }

// rateKey buckets the counter by wall-clock minute.
func rateKey(now time.Time) string {
	return fmt.Sprintf(cache.RateKeyPattern, now.UTC().Format("200601021504"))
}

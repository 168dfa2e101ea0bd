package types

// CacheStatus records how a suggestion lookup was resolved.
type CacheStatus string

const (
	StatusHit           CacheStatus = "HIT"
	StatusMiss          CacheStatus = "MISS"
	StatusStale         CacheStatus = "STALE"
	StatusRateLimited   CacheStatus = "RATE_LIMITED"
	StatusNoSuggestions CacheStatus = "NO_SUGGESTIONS"
)

func (s CacheStatus) String() string {
	return string(s)
}

// Observability headers written on every processed response.
const (
	HeaderCacheStatus  = "X-SEO-Cache"
	HeaderRenderMethod = "X-SEO-Render"
	HeaderProcessed    = "X-SEO-Processed"
)

package common

type contextKey string

const (
	LoggerKey      contextKey = "logger"
	RequestIDKey   contextKey = "request_id"
	BufferDepthKey contextKey = "seo_buffer_depth"
)

// Gin context keys. gin.Context.Set takes plain strings.
const (
	CacheStatusGinKey = "seo_cache_status"
	RouteGinKey       = "seo_route"
)

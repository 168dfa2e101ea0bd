package middleware

// System routes are served by the gateway itself and never processed.
const SystemPathPrefix = "/__/"

// Gin context keys
const (
	RequestIDContextKey    = "request_id"
	RenderMethodContextKey = "seo_render_method"
)

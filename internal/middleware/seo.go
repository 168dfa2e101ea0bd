package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/common"
	"github.com/metasync/seo-gateway/pkg/metrics"
	"github.com/metasync/seo-gateway/pkg/mutation"
	"github.com/metasync/seo-gateway/pkg/overrides"
	"github.com/metasync/seo-gateway/pkg/render"
	"github.com/metasync/seo-gateway/pkg/skip"
	"github.com/metasync/seo-gateway/pkg/types"
)

// SuggestionSource resolves the payload for a route.
type SuggestionSource interface {
	GetSuggestions(ctx context.Context, route string) (*types.Payload, types.CacheStatus)
}

// PageFetcher regenerates a page out of band for the HTTP render path.
type PageFetcher interface {
	Fetch(ctx context.Context, r *http.Request, flags types.BlockingFlags) (*render.LoopbackResponse, error)
}

type SEOConfig struct {
	SiteURL          string
	NoFollowExternal bool
	NewTabExternal   bool
	MultiViewAttr    string
}

// SEOComponents are the collaborators the middleware drives. Skipper and
// Overrides are optional.
type SEOComponents struct {
	Suggestions SuggestionSource
	Selector    *render.Selector
	Processor   *render.Processor
	Loopback    PageFetcher
	Skipper     skip.Skipper
	Overrides   overrides.Provider
	Metrics     *metrics.Metrics
}

type SEOMiddleware struct {
	logger     *logrus.Logger
	config     SEOConfig
	components SEOComponents
	siteBase   *url.URL
}

func NewSEOMiddleware(logger *logrus.Logger, cfg SEOConfig, components SEOComponents) *SEOMiddleware {
	if components.Overrides == nil {
		components.Overrides = overrides.None
	}
	m := &SEOMiddleware{
		logger:     logger,
		config:     cfg,
		components: components,
	}
	if u, err := url.Parse(cfg.SiteURL); err == nil && u.Host != "" {
		m.siteBase = u
	}
	return m
}

// InjectSEO applies suggestions to the response of every eligible request.
// Every failure degrades to serving the page untouched.
func (m *SEOMiddleware) InjectSEO() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, SystemPathPrefix) {
			c.Next()
			return
		}

		r := c.Request
		ctx := r.Context()
		route := m.Route(r)
		c.Set(common.RouteGinKey, route)

		if m.components.Skipper != nil && m.components.Skipper.ShouldSkip(ctx, route, r) {
			c.Next()
			return
		}

		// Loopback requests and unprocessable contexts stop here, before
		// they cost a cache lookup.
		method := m.components.Selector.Select(c)
		if method == render.MethodNone {
			c.Next()
			return
		}

		payload, status := m.components.Suggestions.GetSuggestions(ctx, route)
		c.Set(common.CacheStatusGinKey, status.String())
		c.Header(types.HeaderCacheStatus, status.String())
		if payload.IsEmpty() {
			c.Header(types.HeaderProcessed, "false")
			c.Next()
			return
		}

		flags := payload.BlockingFlags()
		opts := m.options(ctx, r, route)

		if method == render.MethodBuffer {
			if m.serveBuffered(c, payload, opts) {
				return
			}
			LoggerFrom(ctx, m.logger).WithField("route", route).Debug("Buffering rejected, falling back to loopback")
		}
		m.serveLoopback(c, payload, flags, opts)
	}
}

// Route is the fully qualified URL suggestions are keyed on. The configured
// site URL wins over the request's own scheme and host so routes stay stable
// behind proxies.
func (m *SEOMiddleware) Route(r *http.Request) string {
	if m.siteBase != nil {
		return m.siteBase.Scheme + "://" + m.siteBase.Host + r.URL.Path
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func (m *SEOMiddleware) options(ctx context.Context, r *http.Request, route string) mutation.Options {
	local, err := m.components.Overrides.Lookup(ctx, route)
	if err != nil {
		LoggerFrom(ctx, m.logger).WithError(err).WithField("route", route).Warn("Failed to load page overrides, ignoring")
		local = types.Overrides{}
	}
	return mutation.Options{
		SiteURL:          m.config.SiteURL,
		AMP:              mutation.IsAMPRequest(r.URL.Path, r.URL.Query()),
		NoFollowExternal: m.config.NoFollowExternal,
		NewTabExternal:   m.config.NewTabExternal,
		Overrides:        local,
		MultiViewAttr:    m.config.MultiViewAttr,
	}
}

func (m *SEOMiddleware) markMethod(c *gin.Context, method render.Method) {
	c.Set(RenderMethodContextKey, method.String())
	c.Header(types.HeaderRenderMethod, method.String())
	m.components.Metrics.ObserveRenderMethod(method.String())
}

// serveBuffered runs the rest of the chain behind an interceptor. It returns
// false when interception could not start.
func (m *SEOMiddleware) serveBuffered(c *gin.Context, payload *types.Payload, opts mutation.Options) bool {
	transform := func(page render.Page) (string, bool) {
		return m.components.Processor.Process(page, payload, opts)
	}
	interceptor, err := render.StartIntercept(c, transform, m.logger)
	if err != nil {
		if !errors.Is(err, render.ErrInterceptRejected) {
			LoggerFrom(c.Request.Context(), m.logger).WithError(err).Warn("Failed to start output interception")
		}
		return false
	}
	defer interceptor.Finalize()

	m.markMethod(c, render.MethodBuffer)
	c.Next()
	return true
}

// serveLoopback regenerates the page through the gateway itself and serves
// the mutated body in place of this request's own output.
func (m *SEOMiddleware) serveLoopback(c *gin.Context, payload *types.Payload, flags types.BlockingFlags, opts mutation.Options) {
	logger := LoggerFrom(c.Request.Context(), m.logger)

	resp, err := m.components.Loopback.Fetch(c.Request.Context(), c.Request, flags)
	if err != nil {
		logger.WithError(err).Warn("Loopback render failed, serving page untouched")
		c.Header(types.HeaderProcessed, "false")
		c.Next()
		return
	}

	m.markMethod(c, render.MethodHTTP)
	contentType := resp.Header.Get("Content-Type")
	out, processed := m.components.Processor.Process(render.Page{
		Body:        string(resp.Body),
		Status:      resp.Status,
		ContentType: contentType,
	}, payload, opts)

	header := c.Writer.Header()
	for name, values := range resp.Header {
		if isObservabilityHeader(name) {
			continue
		}
		header[name] = append([]string(nil), values...)
	}
	header.Set(types.HeaderProcessed, strconv.FormatBool(processed))

	c.Data(resp.Status, contentType, []byte(out))
	c.Abort()
}

func isObservabilityHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case types.HeaderCacheStatus, types.HeaderRenderMethod, types.HeaderProcessed:
		return true
	}
	return false
}

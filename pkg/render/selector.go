package render

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/common"
)

// SelectorConfig holds the thresholds and path lists the selector uses.
type SelectorConfig struct {
	ForceHTTP           bool
	MaxBufferDepth      int
	MinMemoryHeadroomMB int
	AdminPaths          []string
	APIPaths            []string
	HTTPOnlyPaths       []string
}

// Environment is a snapshot of everything DetermineMethod looks at.
type Environment struct {
	Loopback bool
	Admin    bool
	AJAX     bool
	API      bool
	// Incompatible names the condition that rules out interception, if any.
	Incompatible       string
	InterceptSupported bool
	BufferDepth        int
	HeadersSent        bool
	MemoryHeadroom     uint64
}

// Selector picks the render method per request.
type Selector struct {
	config   SelectorConfig
	logger   *logrus.Logger
	headroom func() uint64
}

func NewSelector(cfg SelectorConfig, logger *logrus.Logger) *Selector {
	if cfg.MaxBufferDepth <= 0 {
		cfg.MaxBufferDepth = 5
	}
	return &Selector{
		config:   cfg,
		logger:   logger,
		headroom: MemoryHeadroom,
	}
}

// Select inspects the request and returns the method to use.
func (s *Selector) Select(c *gin.Context) Method {
	env := s.Inspect(c)
	method := s.DetermineMethod(env)
	s.logger.WithFields(logrus.Fields{
		"path":         c.Request.URL.Path,
		"method":       method.String(),
		"incompatible": env.Incompatible,
		"depth":        env.BufferDepth,
	}).Debug("Selected render method")
	return method
}

// Inspect captures the request environment.
func (s *Selector) Inspect(c *gin.Context) Environment {
	r := c.Request
	path := strings.ToLower(r.URL.Path)

	env := Environment{
		Loopback:           IsLoopback(r),
		Admin:              hasAnyPrefix(path, s.config.AdminPaths),
		AJAX:               strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest"),
		API:                hasAnyPrefix(path, s.config.APIPaths),
		InterceptSupported: c.Writer != nil,
		BufferDepth:        BufferDepth(r.Context()),
		HeadersSent:        c.Writer != nil && c.Writer.Written(),
		MemoryHeadroom:     s.headroom(),
	}

	switch {
	case hasAnyPrefix(path, s.config.HTTPOnlyPaths):
		env.Incompatible = "http_only_path"
	case strings.Contains(r.Header.Get("Accept"), "text/event-stream"):
		env.Incompatible = "event_stream"
	case r.Header.Get("Upgrade") != "":
		env.Incompatible = "upgrade"
	case c.Writer != nil && c.Writer.Header().Get("Content-Encoding") != "":
		// Something upstream in the chain already wraps the writer to encode.
		env.Incompatible = "encoded_writer"
	}
	return env
}

// DetermineMethod applies the selection rules to env.
func (s *Selector) DetermineMethod(env Environment) Method {
	if env.Loopback || env.Admin || env.AJAX || env.API {
		return MethodNone
	}
	if s.config.ForceHTTP || env.Incompatible != "" {
		return MethodHTTP
	}

	floor := uint64(s.config.MinMemoryHeadroomMB) << 20
	if env.InterceptSupported &&
		env.BufferDepth < s.config.MaxBufferDepth &&
		!env.HeadersSent &&
		env.MemoryHeadroom > floor {
		return MethodBuffer
	}
	return MethodHTTP
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// BufferDepth returns how many buffering interceptors wrap this request.
func BufferDepth(ctx context.Context) int {
	depth, _ := ctx.Value(common.BufferDepthKey).(int)
	return depth
}

// WithBufferDepth records one more level of interception on r.
func WithBufferDepth(r *http.Request) *http.Request {
	ctx := context.WithValue(r.Context(), common.BufferDepthKey, BufferDepth(r.Context())+1)
	return r.WithContext(ctx)
}

// Package skip decides which requests the SEO pipeline leaves alone.
package skip

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Skipper reports whether a request must bypass suggestion processing.
type Skipper interface {
	ShouldSkip(ctx context.Context, route string, r *http.Request) bool
}

// Func adapts a function to Skipper.
type Func func(ctx context.Context, route string, r *http.Request) bool

func (f Func) ShouldSkip(ctx context.Context, route string, r *http.Request) bool {
	return f(ctx, route, r)
}

// Chain skips when any member does.
type Chain []Skipper

func (c Chain) ShouldSkip(ctx context.Context, route string, r *http.Request) bool {
	for _, s := range c {
		if s != nil && s.ShouldSkip(ctx, route, r) {
			return true
		}
	}
	return false
}

var staticExtensions = []string{
	".css", ".js", ".mjs", ".map", ".json", ".xml", ".txt",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".pdf", ".zip", ".gz", ".mp4", ".webm", ".mp3",
}

// ExclusionList is the on-disk format of the exclusions file.
type ExclusionList struct {
	// Paths are path.Match globs; a trailing "*" also matches deeper paths.
	Paths      []string `yaml:"paths"`
	UserAgents []string `yaml:"user_agents"`
	Extensions []string `yaml:"extensions"`
}

// Exclusions skips non-page requests and anything the list names.
type Exclusions struct {
	paths      []string
	userAgents []string
	extensions map[string]struct{}
	logger     *logrus.Logger
}

// LoadExclusions reads an exclusions file. An empty filename yields the
// built-in rules only.
func LoadExclusions(filename string, logger *logrus.Logger) (*Exclusions, error) {
	var list ExclusionList
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read exclusions file: %w", err)
		}
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse exclusions file: %w", err)
		}
	}
	return NewExclusions(list, logger), nil
}

func NewExclusions(list ExclusionList, logger *logrus.Logger) *Exclusions {
	e := &Exclusions{
		extensions: make(map[string]struct{}),
		logger:     logger,
	}
	for _, p := range list.Paths {
		if p = strings.TrimSpace(p); p != "" {
			e.paths = append(e.paths, strings.ToLower(p))
		}
	}
	for _, ua := range list.UserAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			e.userAgents = append(e.userAgents, strings.ToLower(ua))
		}
	}
	for _, ext := range append(staticExtensions, list.Extensions...) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		e.extensions[ext] = struct{}{}
	}
	return e
}

func (e *Exclusions) ShouldSkip(_ context.Context, route string, r *http.Request) bool {
	reason := e.reason(r)
	if reason == "" {
		return false
	}
	e.logger.WithFields(logrus.Fields{
		"route":  route,
		"reason": reason,
	}).Debug("Skipping request")
	return true
}

func (e *Exclusions) reason(r *http.Request) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return "method"
	}

	p := strings.ToLower(r.URL.Path)
	if _, ok := e.extensions[path.Ext(p)]; ok {
		return "static_asset"
	}
	for _, pattern := range e.paths {
		if matchPath(pattern, p) {
			return "excluded_path"
		}
	}

	ua := strings.ToLower(r.UserAgent())
	for _, needle := range e.userAgents {
		if strings.Contains(ua, needle) {
			return "excluded_user_agent"
		}
	}
	return ""
}

func matchPath(pattern, p string) bool {
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok && !strings.ContainsAny(prefix, "*?[") {
		return strings.HasPrefix(p, prefix)
	}
	return false
}

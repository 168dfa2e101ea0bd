package skip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestExclusions(t *testing.T) {
	e := NewExclusions(ExclusionList{
		Paths:      []string{"/checkout/*", "/cart", "/blog/*/print"},
		UserAgents: []string{"UptimeRobot"},
		Extensions: []string{"rss"},
	}, testLogger())

	tests := []struct {
		name   string
		method string
		target string
		ua     string
		want   bool
	}{
		{name: "regular page", method: http.MethodGet, target: "/about", want: false},
		{name: "head request", method: http.MethodHead, target: "/about", want: false},
		{name: "post", method: http.MethodPost, target: "/about", want: true},
		{name: "stylesheet", method: http.MethodGet, target: "/static/site.CSS", want: true},
		{name: "custom extension", method: http.MethodGet, target: "/feed.rss", want: true},
		{name: "exact path", method: http.MethodGet, target: "/cart", want: true},
		{name: "prefix glob", method: http.MethodGet, target: "/checkout/step/2", want: true},
		{name: "segment glob", method: http.MethodGet, target: "/blog/hello/print", want: true},
		{name: "segment glob miss", method: http.MethodGet, target: "/blog/hello/world/print", want: false},
		{name: "user agent", method: http.MethodGet, target: "/about", ua: "Mozilla/5.0 (compatible; UptimeRobot/2.0)", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.ua != "" {
				r.Header.Set("User-Agent", tt.ua)
			}
			assert.Equal(t, tt.want, e.ShouldSkip(context.Background(), "https://example.com"+tt.target, r))
		})
	}
}

func TestLoadExclusions(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "exclusions.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
paths:
  - /private/*
user_agents:
  - internal-monitor
`), 0o600))

	e, err := LoadExclusions(file, testLogger())
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/private/page", nil)
	assert.True(t, e.ShouldSkip(context.Background(), "", r))

	_, err = LoadExclusions(filepath.Join(dir, "missing.yaml"), testLogger())
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(file, []byte("paths: [unterminated"), 0o600))
	_, err = LoadExclusions(file, testLogger())
	assert.Error(t, err)
}

func TestLoadExclusionsWithoutFile(t *testing.T) {
	e, err := LoadExclusions("", testLogger())
	require.NoError(t, err)
	assert.True(t, e.ShouldSkip(context.Background(), "", httptest.NewRequest(http.MethodGet, "/logo.png", nil)))
	assert.False(t, e.ShouldSkip(context.Background(), "", httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestChain(t *testing.T) {
	never := Func(func(context.Context, string, *http.Request) bool { return false })
	always := Func(func(context.Context, string, *http.Request) bool { return true })
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	assert.False(t, Chain{never, nil}.ShouldSkip(context.Background(), "", r))
	assert.True(t, Chain{never, always}.ShouldSkip(context.Background(), "", r))
	assert.False(t, Chain{}.ShouldSkip(context.Background(), "", r))
}

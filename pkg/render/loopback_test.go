package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metasync/seo-gateway/pkg/types"
)

func blockingFlags() types.BlockingFlags {
	return types.BlockingFlags{
		HasTitle: true,
		DescriptionTagKinds: map[types.DescriptionKind]struct{}{
			types.DescriptionOG:   {},
			types.DescriptionMeta: {},
		},
	}
}

func TestLoopbackFetch(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/html")
		w.Header().Add("Set-Cookie", "seen=1")
		_, _ = w.Write([]byte("<html>page</html>"))
	}))
	defer server.Close()

	client, err := NewLoopbackClient(LoopbackConfig{BaseURL: server.URL, Timeout: time.Second}, testLogger(), nil)
	require.NoError(t, err)

	orig := httptest.NewRequest(http.MethodGet, "http://www.example.com/blog/post?page=2&seo_loopback=0", nil)
	orig.Header.Set("Cookie", "session=abc")
	orig.Header.Set("Accept-Encoding", "gzip")

	resp, err := client.Fetch(context.Background(), orig, blockingFlags())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<html>page</html>", string(resp.Body))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, "seen=1", resp.Header.Get("Set-Cookie"))

	require.NotNil(t, got)
	assert.Equal(t, "/blog/post", got.URL.Path)
	assert.Equal(t, "www.example.com", got.Host)
	q := got.URL.Query()
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "1", q.Get(LoopbackParam))
	assert.Equal(t, "1", q.Get(BlockTitleParam))
	assert.Equal(t, "description,og:description", q.Get(BlockDescriptionParam))
	assert.Equal(t, "session=abc", got.Header.Get("Cookie"))
	assert.Equal(t, "1", got.Header.Get(InternalFetchHeader))
	assert.NotEmpty(t, got.Header.Get(RequestIDHeader))
	assert.Empty(t, got.Header.Get("Accept-Encoding"))

	// The loopback request is recognised as such on arrival.
	assert.True(t, IsLoopback(got))
	assert.Equal(t, blockingFlags(), FlagsFromRequest(got))
}

func TestLoopbackFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/elsewhere", http.StatusFound)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(300 * time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewLoopbackClient(LoopbackConfig{BaseURL: server.URL, Timeout: 100 * time.Millisecond}, testLogger(), nil)
			require.NoError(t, err)

			resp, err := client.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), types.BlockingFlags{})
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, ErrLoopbackFailed)
		})
	}
}

func TestNewLoopbackClientRejectsBadURL(t *testing.T) {
	_, err := NewLoopbackClient(LoopbackConfig{BaseURL: "not a url"}, testLogger(), nil)
	assert.Error(t, err)
}

func TestTargetURLWithoutFlags(t *testing.T) {
	client, err := NewLoopbackClient(LoopbackConfig{BaseURL: "http://127.0.0.1:8080"}, testLogger(), nil)
	require.NoError(t, err)

	target := client.TargetURL(httptest.NewRequest(http.MethodGet, "/a?b=c", nil), types.BlockingFlags{})
	u, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "/a", u.Path)
	assert.Equal(t, url.Values{"b": {"c"}, LoopbackParam: {"1"}}, u.Query())
}

func TestFlagsFromRequestIgnoresUnknownKinds(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?seo_block_desc=description,bogus", nil)
	flags := FlagsFromRequest(r)
	assert.False(t, flags.HasTitle)
	assert.True(t, flags.BlocksDescription(types.DescriptionMeta))
	assert.Equal(t, []string{"description"}, flags.DescriptionList())
	assert.False(t, IsLoopback(r))
}

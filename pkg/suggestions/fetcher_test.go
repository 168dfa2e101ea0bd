package suggestions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metasync/seo-gateway/pkg/types"
)

func newFetcher(t *testing.T, url string, timeout time.Duration) *HTTPFetcher {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	f, err := NewHTTPFetcher(FetcherConfig{
		URL:     url,
		SiteID:  "site-42",
		APIKey:  "secret",
		Timeout: timeout,
	}, logger)
	require.NoError(t, err)
	return f
}

func TestHTTPFetcherFetch(t *testing.T) {
	var gotRoute, gotSite, gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRoute = r.URL.Query().Get("route")
		gotSite = r.URL.Query().Get("site_id")
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"header_replacements": [
				{"kind": "Title", "recommended_value": "Better Title"},
				{"kind": "meta", "name": "description", "recommended_value": "Better description"}
			],
			"body_substitutions": {
				"images": {"/img/a.png": "A cat"},
				"headings": [{"tag_type": "h1", "current_text": "Old", "recommended_text": "New"}]
			}
		}`))
	}))
	defer server.Close()

	f := newFetcher(t, server.URL+"/v1/suggestions", time.Second)
	payload, err := f.Fetch(context.Background(), "https://example.com/about?x=1")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/about?x=1", gotRoute)
	assert.Equal(t, "site-42", gotSite)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotAccept)

	require.Len(t, payload.HeaderReplacements, 2)
	assert.Equal(t, types.KindTitle, payload.HeaderReplacements[0].Kind)
	assert.Equal(t, "description", payload.HeaderReplacements[1].Key())
	assert.Equal(t, "A cat", payload.BodySubstitutions.Images["/img/a.png"])
	require.Len(t, payload.BodySubstitutions.Headings, 1)
	assert.Equal(t, "New", payload.BodySubstitutions.Headings[0].RecommendedText)
}

func TestHTTPFetcherErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrUpstream,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.NotFound(w, nil)
			},
			wantErr: ErrUpstream,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"header_replacements": [`))
			},
			wantErr: ErrMalformedPayload,
		},
		{
			name: "non-string kind",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"header_replacements": [{"kind": 7}]}`))
			},
			wantErr: ErrMalformedPayload,
		},
		{
			name: "slow upstream",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(300 * time.Millisecond)
				_, _ = w.Write([]byte(`{}`))
			},
			wantErr: ErrUpstream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			f := newFetcher(t, server.URL, 100*time.Millisecond)
			payload, err := f.Fetch(context.Background(), "https://example.com/")
			assert.Nil(t, payload)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPFetcherHonoursContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f := newFetcher(t, server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, "https://example.com/")
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestHTTPFetcherEmptyBodyIsEmptyPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	payload, err := newFetcher(t, server.URL, time.Second).Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.True(t, payload.IsEmpty())
}

func TestHTTPFetcherSkipsUnknownKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"header_replacements": [
			{"kind": "script", "recommended_value": "x"},
			{"kind": "Title", "recommended_value": "Kept"}
		]}`))
	}))
	defer server.Close()

	payload, err := newFetcher(t, server.URL, time.Second).Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, payload.HeaderReplacements, 1)
	assert.Equal(t, types.KindTitle, payload.HeaderReplacements[0].Kind)
	assert.Equal(t, "Kept", payload.HeaderReplacements[0].RecommendedValue)
}

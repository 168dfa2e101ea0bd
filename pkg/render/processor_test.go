package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metasync/seo-gateway/pkg/mutation"
	"github.com/metasync/seo-gateway/pkg/types"
)

const testPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Original title</title>
<meta name="description" content="Original description of this page">
</head>
<body>
<h1>Welcome to the page</h1>
<p>Some content that makes the document long enough to be treated as a real page.</p>
</body>
</html>`

func titlePayload() *types.Payload {
	return &types.Payload{HeaderReplacements: []types.HeaderReplacement{
		{Kind: types.KindTitle, RecommendedValue: "Better title"},
	}}
}

func newTestProcessor() *Processor {
	return NewProcessor(mutation.NewEngine(testLogger(), nil), testLogger(), 255)
}

func TestProcessAppliesPayload(t *testing.T) {
	out, processed := newTestProcessor().Process(Page{
		Body:        testPage,
		Status:      200,
		ContentType: "text/html; charset=utf-8",
	}, titlePayload(), mutation.Options{SiteURL: "https://example.com"})

	assert.True(t, processed)
	assert.Contains(t, out, "<title>Better title</title>")
}

func TestProcessLeavesOutputUntouched(t *testing.T) {
	tests := []struct {
		name    string
		page    Page
		payload *types.Payload
	}{
		{name: "no payload", page: Page{Body: testPage, Status: 200}, payload: nil},
		{name: "too small", page: Page{Body: "<html><head></head><body></body></html>", Status: 200}, payload: titlePayload()},
		{name: "server error", page: Page{Body: testPage, Status: 503}, payload: titlePayload()},
		{name: "json", page: Page{Body: testPage, Status: 200, ContentType: "application/json"}, payload: titlePayload()},
		{name: "not html", page: Page{Body: strings.Repeat("plain text ", 40), Status: 200}, payload: titlePayload()},
		{
			name:    "fatal error page",
			page:    Page{Body: strings.Replace(testPage, "<h1>", "Fatal error: out of memory<h1>", 1), Status: 200},
			payload: titlePayload(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, processed := newTestProcessor().Process(tt.page, tt.payload, mutation.Options{})
			assert.False(t, processed)
			assert.Equal(t, tt.page.Body, out)
		})
	}
}

func TestProcessRejectsShrunkOutput(t *testing.T) {
	p := newTestProcessor()
	p.apply = func(string, *types.Payload, mutation.Options) string {
		return "<html></html>"
	}

	out, processed := p.Process(Page{Body: testPage, Status: 200}, titlePayload(), mutation.Options{})
	assert.False(t, processed)
	assert.Equal(t, testPage, out)
}

func TestProcessRecoversFromPanic(t *testing.T) {
	p := newTestProcessor()
	p.apply = func(string, *types.Payload, mutation.Options) string {
		panic("engine bug")
	}

	out, processed := p.Process(Page{Body: testPage, Status: 200}, titlePayload(), mutation.Options{})
	assert.False(t, processed)
	assert.Equal(t, testPage, out)
}

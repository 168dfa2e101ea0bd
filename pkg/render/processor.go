package render

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/mutation"
	"github.com/metasync/seo-gateway/pkg/types"
)

// fatalMarkers identify error pages that must not be rewritten.
var fatalMarkers = []string{
	"Fatal error:",
	"Parse error:",
	"Uncaught Exception",
	"goroutine 1 [running]",
	"Traceback (most recent call last)",
}

// Processor validates captured page output and runs the mutation engine on
// it. Both render paths share it.
type Processor struct {
	apply            func(src string, p *types.Payload, opts mutation.Options) string
	logger           *logrus.Logger
	minDocumentBytes int
}

func NewProcessor(engine *mutation.Engine, logger *logrus.Logger, minDocumentBytes int) *Processor {
	return &Processor{
		apply:            engine.Apply,
		logger:           logger,
		minDocumentBytes: minDocumentBytes,
	}
}

// Page is the output to process.
type Page struct {
	Body        string
	Status      int
	ContentType string
}

// Process returns the body to serve and whether it differs from the input.
// It never panics and never returns less than a plausible page.
func (p *Processor) Process(page Page, payload *types.Payload, opts mutation.Options) (out string, processed bool) {
	out = page.Body
	if reason := p.reject(page, payload); reason != "" {
		p.logger.WithField("reason", reason).Debug("Leaving captured output untouched")
		return page.Body, false
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", fmt.Sprint(r)).Error("Processing captured output panicked")
			out, processed = page.Body, false
		}
	}()

	mutated := p.apply(page.Body, payload, opts)
	if len(mutated)*2 < len(page.Body) {
		p.logger.WithFields(logrus.Fields{
			"original_bytes": len(page.Body),
			"mutated_bytes":  len(mutated),
		}).Warn("Mutated output failed size check, serving original")
		return page.Body, false
	}
	return mutated, mutated != page.Body
}

func (p *Processor) reject(page Page, payload *types.Payload) string {
	switch {
	case payload.IsEmpty():
		return "no_payload"
	case len(page.Body) < p.minDocumentBytes:
		return "too_small"
	case page.Status >= http.StatusInternalServerError:
		return "server_error"
	case !isHTMLContentType(page.ContentType):
		return "content_type"
	case !looksLikeHTML(page.Body):
		return "not_html"
	case hasFatalMarker(page.Body):
		return "fatal_error_page"
	}
	return ""
}

func isHTMLContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

func looksLikeHTML(body string) bool {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	head = strings.ToLower(head)
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func hasFatalMarker(body string) bool {
	for _, m := range fatalMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

package mutation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/markup"
	"github.com/metasync/seo-gateway/pkg/metrics"
	"github.com/metasync/seo-gateway/pkg/types"
)

// Mutation outcomes reported to metrics.
const (
	OutcomeApplied   = "applied"
	OutcomeUnchanged = "unchanged"
	OutcomeReverted  = "reverted"
	OutcomeSkipped   = "skipped"
)

// MarkerAttr is set on <head> of non-AMP pages this engine processed.
const (
	MarkerAttr  = "data-seo-gateway"
	MarkerValue = "processed"
)

var (
	errImplausible = errors.New("document does not look like a complete HTML page")
	errNoHead      = errors.New("document has no head element")
	errNoBody      = errors.New("document has no body element")
)

// Options carry the per-request context the steps need.
type Options struct {
	SiteURL          string
	AMP              bool
	NoFollowExternal bool
	NewTabExternal   bool
	Overrides        types.Overrides
	MultiViewAttr    string
}

// step is one independently guarded transformation. Steps run in
// ascending priority.
type step struct {
	name     string
	priority int
	run      func(doc *markup.Document, p *types.Payload, opts Options) error
}

// Engine applies suggestion payloads to HTML documents.
type Engine struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics
	steps   []step
}

func NewEngine(logger *logrus.Logger, m *metrics.Metrics) *Engine {
	steps := []step{
		{name: "header_insertion", priority: 10, run: insertHeader},
		{name: "title", priority: 20, run: replaceTitle},
		{name: "meta", priority: 30, run: replaceMeta},
		{name: "canonical", priority: 35, run: replaceCanonical},
		{name: "headings", priority: 40, run: substituteHeadings},
		{name: "links", priority: 50, run: substituteLinks},
		{name: "images", priority: 60, run: substituteImages},
		{name: "body_top_insertion", priority: 70, run: insertBodyTop},
		{name: "body_bottom_insertion", priority: 80, run: insertBodyBottom},
		{name: "footer_insertion", priority: 90, run: insertFooter},
		{name: "external_links", priority: 100, run: annotateExternalLinks},
		{name: "verify", priority: 1000, run: verify},
	}
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].priority < steps[j].priority
	})

	return &Engine{
		logger:  logger,
		metrics: m,
		steps:   steps,
	}
}

// Apply returns src with the payload applied. It never returns an empty
// string and never panics: when anything goes wrong the input comes back
// unchanged.
func (e *Engine) Apply(src string, p *types.Payload, opts Options) (out string) {
	if p.IsEmpty() {
		e.metrics.ObserveMutation(OutcomeSkipped)
		return src
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", fmt.Sprint(r)).Error("Mutation engine panicked, returning original document")
			e.metrics.ObserveMutation(OutcomeReverted)
			out = src
		}
	}()

	doc := markup.Parse(src)
	if err := plausible(doc); err != nil {
		e.logger.WithError(err).Debug("Skipping mutation")
		e.metrics.ObserveMutation(OutcomeSkipped)
		return src
	}
	if !opts.AMP && IsAMPDocument(doc) {
		opts.AMP = true
	}
	if opts.MultiViewAttr == "" {
		opts.MultiViewAttr = DefaultMultiViewAttr
	}

	for _, s := range e.steps {
		e.guard(doc, s, p, opts)
	}

	out = doc.String()
	switch {
	case strings.TrimSpace(out) == "":
		e.metrics.ObserveMutation(OutcomeReverted)
		return src
	case out == src:
		e.metrics.ObserveMutation(OutcomeUnchanged)
	default:
		e.metrics.ObserveMutation(OutcomeApplied)
	}
	return out
}

// guard runs one step and restores the pre-step document if it fails.
func (e *Engine) guard(doc *markup.Document, s step, p *types.Payload, opts Options) {
	before := doc.String()
	err := runStep(s, doc, p, opts)
	if err == nil {
		return
	}

	doc.Reset(before)
	entry := e.logger.WithFields(logrus.Fields{
		"step":  s.name,
		"error": err.Error(),
	})
	if errors.Is(err, errNoHead) || errors.Is(err, errNoBody) {
		entry.Debug("Mutation step not applicable")
		return
	}
	entry.Warn("Mutation step failed, reverted")
}

func runStep(s step, doc *markup.Document, p *types.Payload, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", s.name, r)
		}
	}()
	return s.run(doc, p, opts)
}

// plausible rejects fragments, non-HTML bodies and truncated documents.
func plausible(doc *markup.Document) error {
	head := doc.First("head")
	if head == nil || !head.Closed() {
		return errImplausible
	}
	if doc.LastClosing("body") < 0 && doc.LastClosing("html") < 0 {
		return errImplausible
	}
	return nil
}

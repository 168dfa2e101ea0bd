package suggestions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/types"
)

var (
	// ErrUpstream covers timeouts, connection errors and non-200 replies.
	ErrUpstream = errors.New("suggestion upstream unavailable")
	// ErrMalformedPayload is returned when the body is not a payload document.
	ErrMalformedPayload = errors.New("malformed suggestion payload")
)

// FetcherConfig configures the HTTP suggestion client.
type FetcherConfig struct {
	URL     string
	SiteID  string
	APIKey  string
	Timeout time.Duration
}

// HTTPFetcher calls the upstream suggestion API.
type HTTPFetcher struct {
	client *fasthttp.Client
	base   *url.URL
	config FetcherConfig
	logger *logrus.Logger
}

func NewHTTPFetcher(cfg FetcherConfig, logger *logrus.Logger) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	return &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                config.UserAgent(),
			MaxConnsPerHost:     512,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		base:   base,
		config: cfg,
		logger: logger,
	}, nil
}

// Fetch issues GET {url}?route=..&site_id=.. bounded by the configured timeout
// or the context deadline, whichever is sooner.
func (f *HTTPFetcher) Fetch(ctx context.Context, route string) (*types.Payload, error) {
	target := *f.base
	query := target.Query()
	query.Set("route", route)
	query.Set("site_id", f.config.SiteID)
	target.RawQuery = query.Encode()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target.String())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if f.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}

	timeout := f.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, context.DeadlineExceeded)
	}

	f.logger.WithFields(logrus.Fields{
		"route":   route,
		"timeout": timeout.String(),
	}).Debug("Fetching suggestions")

	if err := f.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
	}

	payload, err := DecodePayload(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dropped := payload.DropUnknown(); len(dropped) > 0 {
		f.logger.WithFields(logrus.Fields{
			"route": route,
			"kinds": dropped,
		}).Warn("Ignoring header replacements of unknown kind")
	}
	return payload, nil
}

package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/metrics"
	"github.com/metasync/seo-gateway/pkg/types"
	"github.com/metasync/seo-gateway/pkg/utils"
)

// ErrLoopbackFailed covers transport errors and non-200 loopback replies.
var ErrLoopbackFailed = errors.New("loopback fetch failed")

// forwardedHeaders keep the re-entrant render in the caller's session.
var forwardedHeaders = []string{
	"Cookie",
	"Authorization",
	"User-Agent",
	"Accept",
	"Accept-Language",
}

type LoopbackConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoopbackResponse is a fully read loopback reply.
type LoopbackResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// LoopbackClient regenerates a page by requesting it again through the
// gateway with the loop-prevention marker set.
type LoopbackClient struct {
	client  *fasthttp.Client
	base    *url.URL
	timeout time.Duration
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewLoopbackClient(cfg LoopbackConfig, logger *logrus.Logger, m *metrics.Metrics) (*LoopbackClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid loopback URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &LoopbackClient{
		client: &fasthttp.Client{
			Name:                config.UserAgent(),
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: time.Minute,
			// Origin pages can be large; responses are buffered anyway.
			MaxResponseBodySize: 64 << 20,
		},
		base:    base,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: m,
	}, nil
}

// TargetURL builds the loopback URL for r.
func (l *LoopbackClient) TargetURL(r *http.Request, flags types.BlockingFlags) string {
	target := *l.base
	target.Path = strings.TrimRight(l.base.Path, "/") + r.URL.Path
	target.RawPath = ""

	query := r.URL.Query()
	stripLoopbackParams(query)
	query.Set(LoopbackParam, "1")
	if flags.HasTitle {
		query.Set(BlockTitleParam, "1")
	}
	if kinds := flags.DescriptionList(); len(kinds) > 0 {
		query.Set(BlockDescriptionParam, strings.Join(kinds, ","))
	}
	target.RawQuery = query.Encode()
	return target.String()
}

// Fetch issues the loopback GET. The original Host header is preserved so
// virtual-host routing at the origin sees the same site.
func (l *LoopbackClient) Fetch(ctx context.Context, r *http.Request, flags types.BlockingFlags) (*LoopbackResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := l.TargetURL(r, flags)
	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	if r.Host != "" {
		req.UseHostHeader = true
		req.Header.SetHost(r.Host)
	}
	for _, name := range forwardedHeaders {
		for _, v := range r.Header.Values(name) {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set(InternalFetchHeader, "1")
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(RequestIDHeader, requestID)

	timeout := l.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrLoopbackFailed, context.DeadlineExceeded)
	}

	logger := l.logger.WithFields(logrus.Fields{
		"url":        target,
		"request_id": requestID,
	})
	logger.Debug("Issuing loopback fetch")

	start := time.Now()
	err := l.client.DoTimeout(req, resp, timeout)
	l.metrics.ObserveLoopbackLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoopbackFailed, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLoopbackFailed, resp.StatusCode())
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoopbackFailed, err)
	}

	out := &LoopbackResponse{
		Status: resp.StatusCode(),
		Header: make(http.Header),
		Body:   append([]byte(nil), body...),
	}
	utils.CopyResponseHeaders(out.Header, &resp.Header)
	out.Header.Del("Content-Encoding")
	return out, nil
}

package server

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/utils"
)

// OriginForwarder relays requests to the origin application.
type OriginForwarder struct {
	client *fasthttp.Client
	origin *url.URL
	logger *logrus.Logger
}

func NewOriginForwarder(originURL string, timeout time.Duration, logger *logrus.Logger) (*OriginForwarder, error) {
	origin, err := url.Parse(originURL)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin url %q", originURL)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OriginForwarder{
		client: &fasthttp.Client{
			Name:                config.UserAgent(),
			MaxConnsPerHost:     10000,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
			MaxResponseBodySize: 64 << 20,
		},
		origin: origin,
		logger: logger,
	}, nil
}

// targetURL maps the incoming request path onto the origin.
func (f *OriginForwarder) targetURL(r *http.Request) string {
	target := *f.origin
	target.Path = strings.TrimRight(f.origin.Path, "/") + r.URL.Path
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery
	return target.String()
}

// Handle forwards the request and copies the origin's response back.
func (f *OriginForwarder) Handle(c *gin.Context) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	r := c.Request
	target := f.targetURL(r)
	req.SetRequestURI(target)
	req.Header.SetMethod(r.Method)
	utils.CopyRequestHeaders(&req.Header, r.Header)
	if r.Host != "" {
		req.UseHostHeader = true
		req.Header.SetHost(r.Host)
		req.Header.Set("X-Forwarded-Host", r.Host)
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())
	if r.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	}

	if r.Body != nil {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			f.logger.WithError(err).Error("Failed to read request body")
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		req.SetBody(body)
	}

	logger := f.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"url":    target,
	})

	if err := f.client.Do(req, resp); err != nil {
		logger.WithError(err).Error("Failed to reach origin")
		c.JSON(http.StatusBadGateway, gin.H{"error": "origin unavailable"})
		return
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		logger.WithError(err).Error("Failed to decode origin response")
		c.JSON(http.StatusBadGateway, gin.H{"error": "invalid origin response"})
		return
	}

	header := c.Writer.Header()
	utils.CopyResponseHeaders(header, &resp.Header)
	header.Del("Content-Encoding")

	logger.WithField("status", resp.StatusCode()).Debug("Origin responded")
	c.Data(resp.StatusCode(), header.Get("Content-Type"), body)
}

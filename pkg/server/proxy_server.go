package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/internal/middleware"
	"github.com/metasync/seo-gateway/pkg/config"
	"github.com/metasync/seo-gateway/pkg/metrics"
)

// ProxyServer sits in front of the origin and injects suggestions into the
// pages it relays.
type ProxyServer struct {
	*BaseServer
	metrics   *metrics.Metrics
	seo       *middleware.SEOMiddleware
	forwarder *OriginForwarder
}

func NewProxyServer(config *config.Config, logger *logrus.Logger, m *metrics.Metrics, seo *middleware.SEOMiddleware, forwarder *OriginForwarder) *ProxyServer {
	s := &ProxyServer{
		BaseServer: NewBaseServer(config, logger),
		metrics:    m,
		seo:        seo,
		forwarder:  forwarder,
	}
	s.setupRoutes()
	return s
}

func (s *ProxyServer) setupRoutes() {
	baseGroup := s.router.Group("")
	baseGroup.Use(s.systemRoutes())

	apiGroup := baseGroup.Group("")
	apiGroup.Use(middleware.RequestID(s.logger))
	apiGroup.Use(middleware.NewMetricsMiddleware(s.logger, s.metrics).MetricsMiddleware())
	apiGroup.Use(s.seo.InjectSEO())

	// Everything else goes to the origin
	apiGroup.Any("/*path", s.forwarder.Handle)
}

// systemRoutes answers the gateway's own endpoints before any other middleware.
func (s *ProxyServer) systemRoutes() gin.HandlerFunc {
	metricsHandler := gin.WrapH(s.metrics.Handler())

	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/__/health", "/health":
			c.JSON(http.StatusOK, healthResponse())
			c.Abort()
			return
		case "/__/ping":
			c.JSON(http.StatusOK, gin.H{
				"message": "pong",
			})
			c.Abort()
			return
		case "/__/metrics":
			metricsHandler(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *ProxyServer) Run() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.logger.WithField("addr", addr).Info("Starting proxy server")
	return s.runServer(addr)
}

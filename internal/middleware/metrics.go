package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/metrics"
)

type MetricsMiddleware struct {
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func NewMetricsMiddleware(logger *logrus.Logger, m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{
		logger:  logger,
		metrics: m,
	}
}

func (m *MetricsMiddleware) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		m.metrics.ObserveRequest(
			c.Request.Method,
			c.Writer.Status(),
			c.GetString(RenderMethodContextKey),
			float64(time.Since(start).Milliseconds()),
		)
	}
}

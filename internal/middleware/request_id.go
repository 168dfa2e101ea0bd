package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/metasync/seo-gateway/pkg/common"
	"github.com/metasync/seo-gateway/pkg/render"
)

// RequestID tags every request with an id, reusing one set by an upstream
// proxy or by the loopback client, and attaches a request scoped logger.
func RequestID(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(render.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(render.RequestIDHeader, id)
		}
		c.Set(RequestIDContextKey, id)
		c.Header(render.RequestIDHeader, id)

		entry := logger.WithField("request_id", id)
		ctx := context.WithValue(c.Request.Context(), common.RequestIDKey, id)
		ctx = context.WithValue(ctx, common.LoggerKey, entry)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggerFrom returns the request scoped logger, falling back to logger.
func LoggerFrom(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if entry, ok := ctx.Value(common.LoggerKey).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logger)
}

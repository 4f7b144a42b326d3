package server

import (
	"mime"
	"net/http"
	"time"

	"chemagent/internal/logging"
	"chemagent/internal/observability"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// jsonMiddleware rejects bodies that are not JSON.
func jsonMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost {
			if ct := c.GetHeader("Content-Type"); ct != "" {
				if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
					c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, errorResponse{Error: "Content-Type must be application/json"})
					return
				}
			}
		}
		c.Next()
	}
}

// observabilityMiddleware traces each request and logs its latency.
func observabilityMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := observability.StartSpan(c.Request.Context(), observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
		)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
		var err error
		if last := c.Errors.Last(); last != nil {
			err = last
		}
		observability.EndSpan(span, err)
		logger.Debug("route=%s method=%s status=%d latency_ms=%.2f",
			route, c.Request.Method, c.Writer.Status(), float64(time.Since(start).Microseconds())/1000.0)
	}
}

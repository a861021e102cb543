package web

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"doggobot/internal/metrics"
	logx "doggobot/pkg/logx"
)

// requestLogger logs each request at a level chosen by status and records
// the HTTP metrics.
func requestLogger(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		status := c.Writer.Status()
		path := c.Request.URL.Path
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", path),
			logx.Int("status", status),
			logx.Duration("duration", d),
			logx.String("client_ip", c.ClientIP()),
			logx.Int("bytes_written", c.Writer.Size()),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, logx.String("user_agent", ua))
		}
		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}

		norm := metrics.NormalizePath(path)
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, norm, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, norm).Observe(d.Seconds())
	}
}

// recovery turns a handler panic into a logged 500.
func recovery(log logx.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		log.Error("http handler panic", logx.Any("panic", err), logx.String("path", c.Request.URL.Path))
		c.AbortWithStatus(500)
	})
}

package server

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
)

const corsMaxAge = 600

// LoggerMiddleware attaches log to the request context and logs one line per
// request. Server errors log at error, client errors at warn and everything
// else at debug so health probes and scrapes stay quiet. Only the path is
// logged since websocket query strings carry session tokens.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqLog := log
		if id := c.GetHeader("X-Request-ID"); id != "" {
			reqLog = log.With("request_id", id)
		}
		c.Request = c.Request.WithContext(logger.ContextWithLogger(c.Request.Context(), reqLog))
		c.Next()
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "conversation_id", id)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Error("Request failed", fields...)
		case status >= http.StatusBadRequest:
			reqLog.Warn("Request rejected", fields...)
		default:
			reqLog.Debug("Request completed", fields...)
		}
	}
}

// CORSMiddleware allows the configured origins. A "*" entry allows any origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	wildcard := slices.Contains(allowedOrigins, "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (wildcard || slices.Contains(allowedOrigins, origin)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, "+
				"Cache-Control, X-Requested-With, X-User-ID",
		)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

package size

import (
	"net/http"

	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/gin-gonic/gin"
)

// BodySizeLimiter rejects requests whose declared body exceeds limit bytes
// and caps reads for the rest, so chunked uploads fail at decode time.
func BodySizeLimiter(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			router.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, router.ErrPayloadTooLargeCode,
				"request body is too large")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

package streamrouter

import (
	"net/http"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/gin-gonic/gin"
)

const conversationIDParam = "conversation_id"

// conversationID reads and validates the path id, writing a 400 when invalid.
func conversationID(c *gin.Context) (string, bool) {
	id := c.Param(conversationIDParam)
	if err := streaming.ValidateConversationID(id); err != nil {
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode, "invalid conversation id")
		return "", false
	}
	return id, true
}

// callerID returns the authenticated user, writing a 401 when absent.
func callerID(c *gin.Context) (string, bool) {
	id, ok := userctx.UserIDFromContext(c.Request.Context())
	if !ok {
		router.RespondProblemWithCode(c, http.StatusUnauthorized, router.ErrUnauthorizedCode, "authentication required")
		return "", false
	}
	return id, true
}

package router

import (
	"net/http"

	"github.com/compozy/statusstream/engine/infra/server/appstate"
	"github.com/gin-gonic/gin"
)

// Response is the envelope for successful JSON responses.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func RespondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Message: message, Data: data})
}

func RespondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Response{Message: message, Data: data})
}

func RespondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, Response{Message: message, Data: data})
}

// GetAppState returns the request's app state, writing a 500 problem and
// returning nil when it is missing.
func GetAppState(c *gin.Context) *appstate.State {
	state, err := appstate.GetState(c.Request.Context())
	if err != nil {
		RespondProblemWithCode(c, http.StatusInternalServerError, ErrInternalCode, "application state not initialized")
		return nil
	}
	return state
}

package router

import (
	"encoding/json"
	"net/http"

	"github.com/compozy/statusstream/engine/core"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
)

const problemContentType = "application/problem+json"

var fallbackProblem = []byte(`{"status":500,"error":"Internal Server Error","type":"about:blank"}`)

// RespondProblem writes problem as application/problem+json and aborts.
func RespondProblem(c *gin.Context, problem *core.Problem) {
	problem = problem.Normalize()
	logProblem(c, problem, nil)
	writeProblem(c, problem)
}

// RespondProblemWithCode writes a problem response embedding a code and detail.
func RespondProblemWithCode(c *gin.Context, status int, code string, detail string) {
	RespondProblem(c, core.NewProblem(status, code, detail))
}

// RespondForbidden writes the single 403 body used for every ownership failure.
// Missing and foreign resources are indistinguishable to the caller.
func RespondForbidden(c *gin.Context) {
	RespondProblemWithCode(c, http.StatusForbidden, ErrForbiddenCode, "access to this conversation is not allowed")
}

// RespondError maps err onto its problem response. The wrapped cause is
// logged, never sent.
func RespondError(c *gin.Context, err *Error) {
	if err == nil {
		err = NewServerError(ErrInternalCode, ErrInternal.Error())
	}
	problem := core.NewProblem(err.Status(), err.Code, err.Message)
	logProblem(c, problem, err.Err)
	writeProblem(c, problem)
}

func writeProblem(c *gin.Context, problem *core.Problem) {
	payload, err := json.Marshal(problem.Body())
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("Failed to marshal problem", "error", err)
		c.Data(http.StatusInternalServerError, problemContentType, fallbackProblem)
		c.Abort()
		return
	}
	c.Data(problem.Status, problemContentType, payload)
	c.Abort()
}

func logProblem(c *gin.Context, problem *core.Problem, cause error) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	fields := []any{
		"status", problem.Status,
		"code", problem.Code,
		"detail", problem.Detail,
		"route", route,
	}
	if cause != nil {
		fields = append(fields, "error", cause)
	}
	if id := requestID(c); id != "" {
		fields = append(fields, "request_id", id)
	}
	log := logger.FromContext(c.Request.Context())
	if problem.Status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
		return
	}
	log.Warn("Request failed", fields...)
}

func requestID(c *gin.Context) string {
	for _, header := range []string{"X-Correlation-ID", "X-Request-ID"} {
		if id := c.Request.Header.Get(header); id != "" {
			return id
		}
		if id := c.Writer.Header().Get(header); id != "" {
			return id
		}
	}
	return ""
}

package router

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/t", handler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", http.NoBody))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondProblem(t *testing.T) {
	t.Run("Should write a problem document with code", func(t *testing.T) {
		w, body := serve(t, func(c *gin.Context) {
			RespondProblemWithCode(c, http.StatusBadRequest, ErrBadRequestCode, "bad id")
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		assert.Equal(t, "BAD_REQUEST", body["code"])
		assert.Equal(t, "bad id", body["details"])
		assert.Equal(t, "Bad Request", body["error"])
	})
	t.Run("Should use one forbidden body for every ownership failure", func(t *testing.T) {
		w1, body1 := serve(t, RespondForbidden)
		w2, body2 := serve(t, RespondForbidden)
		assert.Equal(t, http.StatusForbidden, w1.Code)
		assert.Equal(t, w1.Body.String(), w2.Body.String())
		assert.Equal(t, body1, body2)
	})
	t.Run("Should map server errors to status codes", func(t *testing.T) {
		w, body := serve(t, func(c *gin.Context) {
			RespondError(c, WrapServerError(ErrRateLimitedCode, "slow down", errors.New("limit")))
		})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "RATE_LIMITED", body["code"])
		w, _ = serve(t, func(c *gin.Context) { RespondError(c, nil) })
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestServerError(t *testing.T) {
	t.Run("Should format and unwrap", func(t *testing.T) {
		cause := errors.New("boom")
		err := WrapServerError(ErrInternalCode, "failed", cause)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "INTERNAL_ERROR: failed (boom)", err.Error())
		assert.Equal(t, "NOT_FOUND: missing", NewServerError(ErrNotFoundCode, "missing").Error())
	})
}

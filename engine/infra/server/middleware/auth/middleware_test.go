package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, enabled bool) (*gin.Engine, *auth.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	issuer, err := auth.NewTokenIssuer("0123456789abcdef", "statusstream", time.Hour)
	require.NoError(t, err)
	m := NewManager(issuer, enabled)
	r := gin.New()
	r.Use(m.Middleware())
	whoami := func(c *gin.Context) {
		id, _ := userctx.UserIDFromContext(c.Request.Context())
		c.String(http.StatusOK, id)
	}
	r.GET("/open", whoami)
	r.GET("/private", m.RequireAuth(), whoami)
	return r, issuer
}

func get(r *gin.Engine, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Run("Should authenticate bearer tokens", func(t *testing.T) {
		r, issuer := newRouter(t, true)
		token, err := issuer.Issue("alice", 0)
		require.NoError(t, err)
		w := get(r, "/private", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Body.String())
	})
	t.Run("Should let anonymous requests through open routes", func(t *testing.T) {
		r, _ := newRouter(t, true)
		w := get(r, "/open", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String())
	})
	t.Run("Should block anonymous requests on private routes", func(t *testing.T) {
		r, _ := newRouter(t, true)
		w := get(r, "/private", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})
	t.Run("Should reject invalid tokens", func(t *testing.T) {
		r, _ := newRouter(t, true)
		w := get(r, "/open", map[string]string{"Authorization": "Bearer nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		w = get(r, "/open", map[string]string{"Authorization": "Basic abc"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid authorization header format")
	})
	t.Run("Should accept the token query parameter on websocket upgrades only", func(t *testing.T) {
		r, issuer := newRouter(t, true)
		token, err := issuer.Issue("alice", 0)
		require.NoError(t, err)
		w := get(r, "/private?token="+token, map[string]string{"Upgrade": "websocket"})
		assert.Equal(t, "alice", w.Body.String())
		w = get(r, "/private?token="+token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("Should read the dev header when tokens are disabled", func(t *testing.T) {
		r, _ := newRouter(t, false)
		w := get(r, "/private", map[string]string{DevUserHeader: "bob"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "bob", w.Body.String())
		w = get(r, "/private", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
	t.Run("Should reject dev user ids containing the key separator", func(t *testing.T) {
		r, _ := newRouter(t, false)
		w := get(r, "/open", map[string]string{DevUserHeader: "u:interaction_x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})
}

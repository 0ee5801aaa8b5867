package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
)

// DevUserHeader names the header that carries the caller identity when
// session tokens are disabled.
const DevUserHeader = "X-User-ID"

// tokenQueryParam carries the session token on websocket upgrades, where
// browsers cannot set an Authorization header.
const tokenQueryParam = "token"

// TokenVerifier verifies a session token and returns the user id.
type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Manager handles authentication middleware
type Manager struct {
	verifier TokenVerifier
	enabled  bool
	metrics  *auth.Metrics
}

// NewManager creates a new auth middleware manager. With enabled false the
// caller identity is read from DevUserHeader.
func NewManager(verifier TokenVerifier, enabled bool) *Manager {
	return &Manager{
		verifier: verifier,
		enabled:  enabled,
	}
}

// WithMetrics records verification outcomes on meter. Instrument errors are
// logged and leave the manager uninstrumented.
func (m *Manager) WithMetrics(ctx context.Context, meter metric.Meter) *Manager {
	if meter == nil {
		return m
	}
	metrics, err := auth.NewMetrics(meter)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to initialize auth metrics", "error", err)
		return m
	}
	m.metrics = metrics
	return m
}

// Middleware returns the authentication middleware. Requests without
// credentials continue anonymously; RequireAuth blocks them where needed.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			if id := strings.TrimSpace(c.GetHeader(DevUserHeader)); id != "" {
				if err := userctx.ValidateUserID(id); err != nil {
					m.handleAuthError(c, err)
					return
				}
				m.setAuthContext(c, id)
			}
			c.Next()
			return
		}
		start := time.Now()
		log := logger.FromContext(c.Request.Context())
		token, err := extractToken(c)
		if err != nil {
			var authErr *authError
			if errors.As(err, &authErr) && authErr.message == "no credentials" {
				c.Next()
				return
			}
			log.Debug("Authentication failed", "reason", err.Error())
			m.metrics.Record(c.Request.Context(), auth.OutcomeFailure, start)
			m.handleAuthError(c, err)
			return
		}
		userID, err := m.verifier.Verify(token)
		if err == nil {
			err = userctx.ValidateUserID(userID)
		}
		if err != nil {
			log.Debug("Session token rejected", "error", err)
			m.metrics.Record(c.Request.Context(), auth.OutcomeFailure, start)
			m.handleAuthError(c, err)
			return
		}
		m.metrics.Record(c.Request.Context(), auth.OutcomeSuccess, start)
		m.setAuthContext(c, userID)
		c.Next()
	}
}

// extractToken reads the bearer token, falling back to the token query
// parameter on websocket upgrade requests.
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if isWebsocketUpgrade(c.Request) {
			if token := strings.TrimSpace(c.Query(tokenQueryParam)); token != "" {
				return token, nil
			}
		}
		return "", &authError{message: "no credentials"}
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", &authError{message: "invalid format", public: true}
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", &authError{message: "empty token", public: true}
	}
	return token, nil
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// handleAuthError sends a generic 401 so token details do not leak.
func (m *Manager) handleAuthError(c *gin.Context, err error) {
	detail := "invalid or missing credentials"
	var authErr *authError
	if errors.As(err, &authErr) && authErr.public {
		detail = "invalid authorization header format"
	}
	router.RespondProblemWithCode(c, http.StatusUnauthorized, router.ErrUnauthorizedCode, detail)
}

// setAuthContext injects the user id into the request context and its logger.
func (m *Manager) setAuthContext(c *gin.Context, userID string) {
	ctx := userctx.WithUserID(c.Request.Context(), userID)
	ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("user_id", userID))
	c.Request = c.Request.WithContext(ctx)
	logger.FromContext(ctx).Debug("Authentication successful")
}

type authError struct {
	message string
	public  bool
}

func (e *authError) Error() string {
	return e.message
}

// RequireAuth returns middleware that requires authentication
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := userctx.UserIDFromContext(c.Request.Context()); !ok {
			router.RespondProblemWithCode(
				c,
				http.StatusUnauthorized,
				router.ErrUnauthorizedCode,
				"this endpoint requires a valid session token",
			)
			return
		}
		c.Next()
	}
}

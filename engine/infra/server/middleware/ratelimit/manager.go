package ratelimit

import (
	"net/http"
	"strings"

	"github.com/compozy/statusstream/engine/auth/userctx"
	"github.com/compozy/statusstream/engine/infra/server/router"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

// Manager builds the HTTP rate limiting middleware.
type Manager struct {
	config  *Config
	limiter *limiter.Limiter
}

// NewManager creates an HTTP limiter. A nil client selects the in-memory store.
func NewManager(cfg *Config, client redis.UniversalClient) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := newStore(cfg, client)
	if err != nil {
		return nil, err
	}
	return &Manager{
		config:  cfg,
		limiter: limiter.New(store, cfg.HTTPRate.ToLimiterRate()),
	}, nil
}

// Middleware limits requests per authenticated user, or per client IP for
// anonymous requests.
func (m *Manager) Middleware() gin.HandlerFunc {
	if m.config.HTTPRate.Disabled {
		return func(c *gin.Context) { c.Next() }
	}
	limit := mgin.NewMiddleware(
		m.limiter,
		mgin.WithKeyGetter(keyFor),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			keyType := "ip"
			if _, ok := userctx.UserIDFromContext(c.Request.Context()); ok {
				keyType = "user"
			}
			recordBlocked(c.Request.Context(), scopeHTTP, keyType)
			router.RespondProblemWithCode(c, http.StatusTooManyRequests, router.ErrRateLimitedCode, "too many requests")
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.FromContext(c.Request.Context()).Warn("Rate limit store unavailable", "error", err)
			c.Next()
		}),
	)
	return func(c *gin.Context) {
		if m.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}
		limit(c)
	}
}

func (m *Manager) excluded(path string) bool {
	for _, prefix := range m.config.ExcludedPaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func keyFor(c *gin.Context) string {
	if id, ok := userctx.UserIDFromContext(c.Request.Context()); ok {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

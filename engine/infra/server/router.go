package server

import (
	"fmt"
	"strings"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/infra/server/appstate"
	authmw "github.com/compozy/statusstream/engine/infra/server/middleware/auth"
	"github.com/compozy/statusstream/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/statusstream/engine/infra/server/middleware/size"
	"github.com/compozy/statusstream/engine/infra/server/routes"
	streamrouter "github.com/compozy/statusstream/engine/stream/router"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/compozy/statusstream/pkg/version"
	"github.com/gin-gonic/gin"
)

func (s *Server) buildRouter(state *appstate.State) error {
	cfg := config.FromContext(s.ctx)
	log := logger.FromContext(s.ctx)
	r := gin.New()
	r.Use(gin.Recovery())
	if err := s.useRateLimiter(r, cfg); err != nil {
		log.Error("Failed to initialize rate limiting", "error", err)
	}
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		r.Use(s.monitoring.GinMiddleware())
	}
	r.Use(LoggerMiddleware(log))
	if cfg.Server.CORSEnabled {
		r.Use(CORSMiddleware(cfg.Server.CORSOrigins))
	}
	r.Use(size.BodySizeLimiter(maxRequestBodyBytes))
	r.Use(appstate.StateMiddleware(state))
	authManager, err := s.buildAuthManager(cfg)
	if err != nil {
		return err
	}
	r.Use(authManager.Middleware())
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		r.GET(s.monitoring.Path(), gin.WrapH(s.monitoring.ExporterHandler()))
	}
	s.hub = streamrouter.NewHub(streamrouter.HubConfig{
		PingInterval: cfg.Stream.WSPingInterval,
		WriteTimeout: cfg.Stream.WSWriteTimeout,
	})
	if err := RegisterRoutes(s.ctx, r, state, s); err != nil {
		return err
	}
	s.router = r
	return nil
}

func (s *Server) useRateLimiter(r *gin.Engine, cfg *config.Config) error {
	if cfg.RateLimit.HTTPRate.Disabled || cfg.RateLimit.HTTPRate.Limit <= 0 {
		return nil
	}
	limitCfg := ratelimit.FromAppConfig(cfg)
	limitCfg.ExcludedPaths = append(limitCfg.ExcludedPaths, routes.HealthVersioned(), routes.WS())
	manager, err := ratelimit.NewManager(limitCfg, s.limiterClient(cfg))
	if err != nil {
		return err
	}
	r.Use(manager.Middleware())
	driver := "memory"
	if s.limiterClient(cfg) != nil {
		driver = "redis"
	}
	logger.FromContext(s.ctx).Info("Rate limiter initialized",
		"driver", driver,
		"http_limit", limitCfg.HTTPRate.Limit,
		"http_period", limitCfg.HTTPRate.Period,
		"emit_limit", limitCfg.EmitRate.Limit)
	return nil
}

func (s *Server) buildAuthManager(cfg *config.Config) (*authmw.Manager, error) {
	if !cfg.Auth.Enabled {
		logger.FromContext(s.ctx).Warn("Session tokens disabled; caller identity is read from the dev header",
			"header", authmw.DevUserHeader)
		return authmw.NewManager(nil, false), nil
	}
	issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret.Value(), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session tokens: %w", err)
	}
	return authmw.NewManager(issuer, true).WithMetrics(s.ctx, s.monitoring.Meter()), nil
}

func (s *Server) logStartupBanner(addr string) {
	cfg := config.FromContext(s.ctx)
	httpURL := fmt.Sprintf("http://%s:%d", friendlyHost(cfg.Server.Host), cfg.Server.Port)
	lines := []string{
		fmt.Sprintf("Statusstream %s", version.Get().Version),
		fmt.Sprintf("  Listen        > %s", addr),
		fmt.Sprintf("  API           > %s%s", httpURL, routes.Base()),
		fmt.Sprintf("  Health        > %s%s", httpURL, routes.HealthVersioned()),
		fmt.Sprintf("  Websocket     > ws://%s:%d%s", friendlyHost(cfg.Server.Host), cfg.Server.Port, routes.WS()),
	}
	if s.monitoring != nil && s.monitoring.IsInitialized() {
		lines = append(lines, fmt.Sprintf("  Metrics       > %s%s", httpURL, s.monitoring.Path()))
	}
	logger.FromContext(s.ctx).Info("\n" + strings.Join(lines, "\n"))
}

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/compozy/statusstream/engine/auth"
	"github.com/compozy/statusstream/engine/conversation"
	"github.com/compozy/statusstream/engine/infra/cache"
	"github.com/compozy/statusstream/engine/infra/monitoring"
	"github.com/compozy/statusstream/engine/infra/postgres"
	"github.com/compozy/statusstream/engine/infra/pubsub"
	"github.com/compozy/statusstream/engine/infra/server/appstate"
	"github.com/compozy/statusstream/engine/infra/server/middleware/ratelimit"
	"github.com/compozy/statusstream/engine/infra/sqlite"
	"github.com/compozy/statusstream/engine/infra/sugardb"
	"github.com/compozy/statusstream/engine/streaming"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func (s *Server) setupDependencies() (*appstate.State, []func(), error) {
	cleanupFuncs := make([]func(), 0)
	cfg := config.FromContext(s.ctx)
	cacheInstance, cacheCleanup, err := s.setupCache(cfg)
	if err != nil {
		return nil, cleanupFuncs, err
	}
	cleanupFuncs = appendCleanup(cleanupFuncs, cacheCleanup)
	cleanupFuncs = appendCleanup(cleanupFuncs, s.setupMonitoring(cfg))
	provider, brokerCleanup, err := s.setupBroker(cfg, cacheInstance.Client)
	if err != nil {
		return nil, cleanupFuncs, err
	}
	cleanupFuncs = appendCleanup(cleanupFuncs, brokerCleanup)
	queue, err := streaming.NewRedisQueue(cacheInstance.Client, &streaming.QueueOptions{
		Namespace: cfg.Stream.Namespace,
		TTL:       cfg.Stream.QueueTTL,
		MaxLength: cfg.Stream.QueueMaxLength,
	})
	if err != nil {
		return nil, cleanupFuncs, fmt.Errorf("failed to initialize queue store: %w", err)
	}
	channels, err := streaming.NewChannelRouter(provider, cfg.Stream.ChannelPrefix)
	if err != nil {
		return nil, cleanupFuncs, fmt.Errorf("failed to initialize channel router: %w", err)
	}
	repo, storeCleanup, err := s.setupStore(cfg)
	if err != nil {
		return nil, cleanupFuncs, err
	}
	cleanupFuncs = appendCleanup(cleanupFuncs, storeCleanup)
	resolver, err := conversation.NewCachedResolver(repo, cfg.Store.OwnerCache, cfg.Store.OwnerTTL)
	if err != nil {
		return nil, cleanupFuncs, fmt.Errorf("failed to initialize ownership resolver: %w", err)
	}
	cleanupFuncs = appendCleanup(cleanupFuncs, resolver.Close)
	emitter, err := s.buildEmitter(cfg, queue, channels, resolver, repo, s.limiterClient(cfg))
	if err != nil {
		return nil, cleanupFuncs, err
	}
	state, err := appstate.NewState(cfg, appstate.BaseDeps{
		Queue:         queue,
		Channels:      channels,
		Emitter:       emitter,
		Conversations: repo,
		Guard:         auth.NewGuard(resolver),
	}, s.monitoring.Stream())
	if err != nil {
		return nil, cleanupFuncs, fmt.Errorf("failed to create app state: %w", err)
	}
	return state, cleanupFuncs, nil
}

func (s *Server) setupCache(cfg *config.Config) (*cache.Cache, func(), error) {
	cacheInstance, err := cache.SetupCache(s.ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup cache: %w", err)
	}
	s.cache = cacheInstance
	s.cacheDriverLabel = "redis"
	if cacheInstance.Embedded != nil {
		s.cacheDriverLabel = "miniredis"
	}
	s.addProbe("redis", cacheInstance.HealthCheck)
	return cacheInstance, func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), cleanupTimeout)
		defer cancel()
		if err := cacheInstance.Close(ctx); err != nil {
			logger.FromContext(s.ctx).Error("Failed to close cache", "error", err)
		}
	}, nil
}

func (s *Server) setupMonitoring(cfg *config.Config) func() {
	log := logger.FromContext(s.ctx)
	start := time.Now()
	monCfg := monitoring.FromAppConfig(cfg)
	ctx, cancel := context.WithTimeout(s.ctx, monitoringInitTimeout)
	defer cancel()
	svc := monitoring.NewServiceWithFallback(ctx, monCfg)
	s.monitoring = svc
	if err := svc.InitializationError(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Monitoring initialization timed out, continuing without monitoring", "duration", time.Since(start))
		}
		return func() {}
	}
	if !svc.IsInitialized() {
		log.Info("Monitoring is disabled in the configuration", "duration", time.Since(start))
		return func() {}
	}
	svc.SetAsGlobal()
	log.Info("Monitoring service initialized successfully",
		"path", monCfg.Path,
		"duration", time.Since(start))
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), cleanupTimeout)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown monitoring service", "error", err)
		}
	}
}

// setupBroker selects the pub/sub transport behind the channel router.
func (s *Server) setupBroker(cfg *config.Config, client redis.UniversalClient) (pubsub.Provider, func(), error) {
	if strings.ToLower(cfg.Stream.Broker) != config.BrokerSugarDB {
		provider, err := pubsub.NewRedisProvider(client)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize pubsub provider: %w", err)
		}
		s.brokerDriverLabel = config.BrokerRedis
		return provider, nil, nil
	}
	if !config.IsStandalone(s.ctx) {
		return nil, nil, fmt.Errorf("the sugardb broker requires standalone mode")
	}
	broker, err := sugardb.NewEmbedded(s.ctx, cfg.Stream.BrokerDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start sugardb broker: %w", err)
	}
	provider, err := sugardb.NewProvider(broker.DB())
	if err != nil {
		broker.Close()
		return nil, nil, fmt.Errorf("failed to initialize sugardb provider: %w", err)
	}
	s.brokerDriverLabel = config.BrokerSugarDB
	s.addProbe("broker", broker.HealthCheck)
	return provider, broker.Close, nil
}

// limiterClient shares Redis with the limiter only when replicas must agree
// on budgets.
func (s *Server) limiterClient(cfg *config.Config) redis.UniversalClient {
	if config.NormalizeMode(cfg.Mode) == config.ModeDistributed && s.cache != nil {
		return s.cache.Client
	}
	return nil
}

func (s *Server) buildEmitter(
	cfg *config.Config,
	queue streaming.QueueStore,
	channels streaming.Publisher,
	owners streaming.OwnershipResolver,
	repo conversation.Repository,
	limiterClient redis.UniversalClient,
) (*streaming.Emitter, error) {
	limiter, err := ratelimit.NewEmitLimiter(ratelimit.FromAppConfig(cfg), limiterClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize emit limiter: %w", err)
	}
	config.ManagerFromContext(s.ctx).OnChange(func(next *config.Config) {
		rate := ratelimit.FromAppConfig(next).EmitRate
		log := logger.FromContext(s.ctx)
		if err := limiter.SetRate(rate); err != nil {
			log.Warn("Ignoring reloaded emit rate", "error", err)
			return
		}
		log.Info("Emit rate updated", "limit", rate.Limit, "period", rate.Period, "disabled", rate.Disabled)
	})
	opts := []streaming.Option{
		streaming.WithRateLimiter(limiter),
		streaming.WithHooks(conversation.NewStatusHook(repo)),
		streaming.WithMaxPayloadAnswer(cfg.Stream.MaxPayloadAnswer),
		streaming.WithRecorder(s.monitoring.Stream()),
	}
	emitter, err := streaming.NewEmitter(queue, channels, owners, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize emitter: %w", err)
	}
	return emitter, nil
}

// setupStore opens the conversation repository selected by store.driver.
func (s *Server) setupStore(cfg *config.Config) (conversation.Repository, func(), error) {
	start := time.Now()
	log := logger.FromContext(s.ctx)
	driver := strings.ToLower(cfg.Store.Driver)
	switch driver {
	case config.StoreMemory:
		s.storeDriverLabel = config.StoreMemory
		log.Warn("Using in-memory conversation store; conversations are lost on restart")
		return conversation.NewMemoryRepository(), nil, nil
	case config.StorePostgres:
		pgCfg := &postgres.Config{
			ConnString:   cfg.Store.DSN.Value(),
			MaxOpenConns: cfg.Store.MaxOpenConns,
		}
		if err := postgres.ApplyMigrations(s.ctx, pgCfg.DSN()); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate postgres store: %w", err)
		}
		store, err := postgres.NewStore(s.ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		s.storeDriverLabel = config.StorePostgres
		s.addProbe("store", store.HealthCheck)
		log.Info("Conversation store ready", "driver", driver, "duration", time.Since(start))
		return postgres.NewConversationRepo(store.Pool()), s.storeCloser(store.Close), nil
	default:
		store, err := sqlite.NewStore(s.ctx, sqlite.ConfigFrom(cfg.Store))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := store.Migrate(s.ctx); err != nil {
			_ = store.Close(s.ctx)
			return nil, nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
		}
		s.storeDriverLabel = config.StoreSQLite
		s.addProbe("store", store.HealthCheck)
		log.Info("Conversation store ready",
			"driver", config.StoreSQLite,
			"path", store.Path(),
			"mode", sqliteMode(store.Path()),
			"duration", time.Since(start))
		return sqlite.NewConversationRepo(store.DB()), s.storeCloser(store.Close), nil
	}
}

func (s *Server) storeCloser(closeFn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), cleanupTimeout)
		defer cancel()
		if err := closeFn(ctx); err != nil {
			logger.FromContext(s.ctx).Error("Failed to close conversation store", "error", err)
		}
	}
}

func sqliteMode(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "unknown"
	}
	lowered := strings.ToLower(trimmed)
	if lowered == ":memory:" || strings.HasPrefix(lowered, "file::memory:") ||
		strings.Contains(lowered, "mode=memory") {
		return "in-memory"
	}
	return "file-based"
}

// appendCleanup appends a cleanup function when it is non-nil.
func appendCleanup(cleanups []func(), cleanup func()) []func() {
	if cleanup == nil {
		return cleanups
	}
	return append(cleanups, cleanup)
}

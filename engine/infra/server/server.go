package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/compozy/statusstream/engine/infra/cache"
	"github.com/compozy/statusstream/engine/infra/monitoring"
	"github.com/compozy/statusstream/engine/infra/server/router"
	streamrouter "github.com/compozy/statusstream/engine/stream/router"
	"github.com/compozy/statusstream/pkg/config"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	statusHealthy         = "healthy"
	statusDegraded        = "degraded"
	monitoringInitTimeout = 500 * time.Millisecond
	cleanupTimeout        = 30 * time.Second
	httpReadTimeout       = 15 * time.Second
	httpIdleTimeout       = 60 * time.Second
	healthProbeTimeout    = 2 * time.Second
	maxRequestBodyBytes   = 1 << 20
	hostAny               = "0.0.0.0"
	hostLoopback          = "127.0.0.1"
	driverNone            = "none"
)

type healthProbe struct {
	name  string
	check func(ctx context.Context) error
}

// Server runs the status stream HTTP API and owns every backing service.
type Server struct {
	ctx        context.Context
	cancel     context.CancelFunc
	router     *gin.Engine
	monitoring *monitoring.Service
	cache      *cache.Cache
	hub        *streamrouter.Hub

	probesMu sync.RWMutex
	probes   []healthProbe

	storeDriverLabel  string
	brokerDriverLabel string
	cacheDriverLabel  string

	cleanupMu    sync.Mutex
	cleanupFuncs []func()
	setupOnce    sync.Once
	setupErr     error
	shutdownOnce sync.Once
}

// NewServer creates a server bound to the configuration attached to ctx.
func NewServer(ctx context.Context) (*Server, error) {
	serverCtx, cancel := context.WithCancel(ctx)
	if config.FromContext(serverCtx) == nil {
		cancel()
		return nil, fmt.Errorf("configuration missing from context; attach a manager with config.ContextWithManager")
	}
	return &Server{
		ctx:               serverCtx,
		cancel:            cancel,
		storeDriverLabel:  driverNone,
		brokerDriverLabel: driverNone,
		cacheDriverLabel:  driverNone,
	}, nil
}

// Setup builds dependencies and routes without listening. It is idempotent.
func (s *Server) Setup() error {
	s.setupOnce.Do(func() {
		start := time.Now()
		state, cleanups, err := s.setupDependencies()
		s.cleanupMu.Lock()
		s.cleanupFuncs = append(s.cleanupFuncs, cleanups...)
		s.cleanupMu.Unlock()
		if err != nil {
			s.setupErr = err
			return
		}
		if err := s.buildRouter(state); err != nil {
			s.setupErr = fmt.Errorf("failed to build router: %w", err)
			return
		}
		s.emitStartupSummary(time.Since(start))
	})
	return s.setupErr
}

// Handler exposes the HTTP handler once Setup succeeded.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run sets up the server, listens until ctx is cancelled or a termination
// signal arrives, then shuts down gracefully.
func (s *Server) Run() error {
	defer s.Close()
	if err := s.Setup(); err != nil {
		return err
	}
	cfg := config.FromContext(s.ctx)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	sigCtx, stop := signal.NotifyContext(s.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		s.logStartupBanner(addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%w: %w", router.ErrBindError, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log := logger.FromContext(s.ctx)
		log.Debug("Received shutdown signal, initiating graceful shutdown")
		if s.hub != nil {
			s.hub.Close()
		}
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info("Server shutdown completed successfully")
		return nil
	})
	return g.Wait()
}

// Close runs every registered cleanup in reverse order. It is idempotent.
func (s *Server) Close() {
	s.shutdownOnce.Do(func() {
		if s.hub != nil {
			s.hub.Close()
		}
		s.cancel()
		s.cleanupMu.Lock()
		cleanups := s.cleanupFuncs
		s.cleanupFuncs = nil
		s.cleanupMu.Unlock()
		s.cleanup(cleanups)
	})
}

func (s *Server) addProbe(name string, check func(ctx context.Context) error) {
	s.probesMu.Lock()
	defer s.probesMu.Unlock()
	s.probes = append(s.probes, healthProbe{name: name, check: check})
}

func (s *Server) healthProbes() []healthProbe {
	s.probesMu.RLock()
	defer s.probesMu.RUnlock()
	out := make([]healthProbe, len(s.probes))
	copy(out, s.probes)
	return out
}

func (s *Server) cleanup(cleanupFuncs []func()) {
	log := logger.FromContext(s.ctx)
	for i := len(cleanupFuncs) - 1; i >= 0; i-- {
		idx := len(cleanupFuncs) - 1 - i
		log.Debug("Running cleanup function", "index", idx, "total", len(cleanupFuncs))
		s.runCleanupWithTimeout(cleanupFuncs[i], cleanupTimeout, idx)
	}
}

func (s *Server) runCleanupWithTimeout(fn func(), timeout time.Duration, index int) {
	log := logger.FromContext(s.ctx)
	done := make(chan struct{})
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Cleanup function panicked", "index", index, "panic", r)
			}
			close(done)
		}()
		fn()
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		log.Debug("Cleanup function completed", "index", index, "duration", time.Since(start))
	case <-timer.C:
		log.Warn("Cleanup function exceeded timeout", "index", index, "timeout", timeout, "elapsed", time.Since(start))
	}
}

func (s *Server) emitStartupSummary(total time.Duration) {
	logger.FromContext(s.ctx).Info("Server dependencies setup completed",
		"total_duration", total,
		"store_driver", s.storeDriverLabel,
		"broker_driver", s.brokerDriverLabel,
		"cache_driver", s.cacheDriverLabel,
	)
}

func friendlyHost(h string) string {
	if h == hostAny || h == "::" || h == "" {
		return hostLoopback
	}
	return h
}

// Package monitoring owns the OpenTelemetry meter provider behind /metrics
// and the stream level instruments recorded by the emitter and websocket hub.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/compozy/statusstream/engine/infra/monitoring/middleware"
	"github.com/compozy/statusstream/pkg/logger"
	"github.com/compozy/statusstream/pkg/version"
	"github.com/gin-gonic/gin"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "statusstream"

// Service exposes the meter, the gin instrumentation and the scrape handler.
// A disabled or degraded Service hands out no-op instruments.
type Service struct {
	config   *Config
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prom.Registry
	stream   *StreamMetrics
	http     *middleware.HTTPMetrics
	process  *processMetrics
	initErr  error
}

func newNoopService(cfg *Config, initErr error) *Service {
	return &Service{
		config:  cfg,
		meter:   noop.NewMeterProvider().Meter(meterName),
		stream:  &StreamMetrics{},
		initErr: initErr,
	}
}

// NewService builds a Prometheus backed service, or a no-op one when cfg
// disables monitoring.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	if !cfg.Enabled {
		log.Debug("Monitoring disabled, using no-op meter")
		return newNoopService(cfg, nil), nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	s := &Service{
		config:   cfg,
		meter:    provider.Meter(meterName),
		provider: provider,
		registry: registry,
	}
	if err := s.instrument(); err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	info := version.Get()
	log.Info("Monitoring service initialized", "path", cfg.Path, "version", info.Version, "commit", info.Short())
	return s, nil
}

func (s *Service) instrument() error {
	var err error
	if s.stream, err = NewStreamMetrics(s.meter); err != nil {
		return err
	}
	if s.http, err = middleware.NewHTTPMetrics(s.meter); err != nil {
		return err
	}
	if s.process, err = newProcessMetrics(s.meter, version.Get()); err != nil {
		return err
	}
	return nil
}

// NewServiceWithFallback never fails: initialization errors yield a no-op
// service that reports the error through InitializationError.
func NewServiceWithFallback(ctx context.Context, cfg *Config) *Service {
	service, err := NewService(ctx, cfg)
	if err == nil {
		return service
	}
	logger.FromContext(ctx).Error("Failed to initialize monitoring, using no-op implementation", "error", err)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return newNoopService(cfg, err)
}

func (s *Service) Meter() metric.Meter { return s.meter }

// Stream returns the emitter and websocket instruments. It is never nil.
func (s *Service) Stream() *StreamMetrics { return s.stream }

// Path is the route the exporter handler should be mounted on.
func (s *Service) Path() string { return s.config.Path }

func (s *Service) IsInitialized() bool { return s.provider != nil }

func (s *Service) InitializationError() error { return s.initErr }

// GinMiddleware returns the HTTP instrumentation, or a pass-through handler
// when monitoring is off.
func (s *Service) GinMiddleware() gin.HandlerFunc {
	if s.http == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.http.Handler()
}

// ExporterHandler serves the Prometheus text format for the service registry.
func (s *Service) ExporterHandler() http.Handler {
	if !s.IsInitialized() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("Monitoring service not initialized")); err != nil {
				logger.FromContext(r.Context()).Error("Failed to write response", "error", err)
			}
		})
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// SetAsGlobal installs the provider as the global meter provider so package
// level instruments (rate limiter, auth, postgres pool) report through it.
func (s *Service) SetAsGlobal() {
	if s.provider != nil {
		otel.SetMeterProvider(s.provider)
	}
}

// Shutdown flushes and releases the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return errors.Join(s.process.close(), s.provider.Shutdown(ctx))
}

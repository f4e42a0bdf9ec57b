package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"wsbridge/internal/config"
	wsConnector "wsbridge/internal/connector/websocket"
	"wsbridge/internal/metrics"
	"wsbridge/internal/middleware/cors"
	"wsbridge/internal/resolver"
	"wsbridge/internal/routes"
	routesRedis "wsbridge/internal/routes/redis"
	"wsbridge/internal/telemetry"
	"wsbridge/pkg/errors"
)

// redisDialTimeout bounds the initial Redis ping
const redisDialTimeout = 5 * time.Second

// Builder builds the proxy server
type Builder struct {
	config   *config.Config
	logger   *slog.Logger
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// NewBuilder creates a new application builder
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		config:   cfg,
		logger:   logger,
		registry: prometheus.DefaultRegisterer,
		gatherer: prometheus.DefaultGatherer,
	}
}

// WithRegistry registers metrics with reg instead of the default registry
func (b *Builder) WithRegistry(reg *prometheus.Registry) *Builder {
	b.registry = reg
	b.gatherer = reg
	return b
}

// Build constructs the server
func (b *Builder) Build() (*Server, error) {
	if b.config == nil {
		return nil, errors.Validation("configuration is required")
	}

	s := &Server{
		config:   b.config,
		registry: NewRegistry(),
		logger:   b.logger.With("component", "proxy"),
	}
	s.serverCtx, s.serverCancel = context.WithCancel(context.Background())

	table, err := b.buildRoutes(s)
	if err != nil {
		return nil, fmt.Errorf("creating route table: %w", err)
	}
	s.resolver = resolver.New(table)

	var reg prometheus.Registerer
	if b.config.Metrics.Enabled {
		s.metrics = metrics.NewWithRegistry(b.registry, b.gatherer)
		reg = b.registry
		b.logger.Info("Metrics enabled", "path", b.config.Metrics.Path)
	}

	tel, err := telemetry.New(b.config.Telemetry.ToTelemetry(), reg)
	if err != nil {
		s.runClosers()
		return nil, fmt.Errorf("creating telemetry: %w", err)
	}
	s.closers = append(s.closers, tel.Shutdown)
	s.instruments, err = tel.NewBridgeInstruments()
	if err != nil {
		s.runClosers()
		return nil, fmt.Errorf("creating bridge instruments: %w", err)
	}
	if b.config.Telemetry.Enabled {
		s.telemetry = tel
		b.logger.Info("Tracing enabled", "endpoint", b.config.Telemetry.Endpoint)
	}

	s.connector = wsConnector.NewConnector(&wsConnector.Config{
		HandshakeTimeout:  b.config.Timing.HandshakeTimeout(),
		ConnectionTimeout: b.config.Timing.HandshakeTimeout(),
		ReadBufferSize:    b.config.Proxy.ReadBufferSize,
		WriteBufferSize:   b.config.Proxy.WriteBufferSize,
		MaxMessageSize:    b.config.Proxy.MaxMessageSize,
	}, b.logger)

	policy := b.config.CORS.ToPolicy()
	s.cors = cors.New(policy)
	s.upgrader = b.buildUpgrader(s, policy)

	b.logger.Info("Proxy configured",
		"routes", s.static.Len(),
		"idleTimeout", b.config.Timing.IdleTimeout(),
		"retryDelay", b.config.Timing.RetryDelay(),
		"maxRetries", b.config.Timing.MaxRetries,
	)

	return s, nil
}

// buildRoutes creates the static table and, when configured, chains the
// Redis table behind it
func (b *Builder) buildRoutes(s *Server) (routes.Table, error) {
	s.static = routes.NewStaticTable(b.config.RouteTable())

	if b.config.Redis == nil {
		return s.static, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()

	redisTable, err := routesRedis.Dial(ctx, routesRedis.Options{
		Addr:     b.config.Redis.Addr,
		Password: b.config.Redis.Password,
		DB:       b.config.Redis.DB,
		Key:      b.config.Redis.Key,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func(context.Context) error {
		return redisTable.Close()
	})

	if b.config.Redis.Publish {
		s.publisher = redisTable
		if err := s.publishRoutes(ctx, b.config.RouteTable()); err != nil {
			s.runClosers()
			return nil, err
		}
	}

	b.logger.Info("Redis route table enabled",
		"addr", b.config.Redis.Addr,
		"publish", b.config.Redis.Publish,
	)
	return routes.Chain{s.static, redisTable}, nil
}

func (b *Builder) buildUpgrader(s *Server, policy cors.Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: b.config.Timing.HandshakeTimeout(),
		ReadBufferSize:   b.config.Proxy.ReadBufferSize,
		WriteBufferSize:  b.config.Proxy.WriteBufferSize,
		CheckOrigin:      makeCheckOrigin(policy),
		// handshake rejections keep the upgrader's 4xx status, such as 403
		// for a disallowed origin
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			if status < 400 || status >= 500 {
				status = http.StatusBadRequest
			}
			s.writeErrorStatus(w, r, status, errors.Validation(reason.Error()).WithDetail("status", status))
		},
	}
}

// runClosers releases resources acquired by a failed Build
func (s *Server) runClosers() {
	for _, closer := range s.closers {
		_ = closer(context.Background())
	}
}

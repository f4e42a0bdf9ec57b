package app

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wsbridge/internal/bridge"
	"wsbridge/internal/config"
	wsConnector "wsbridge/internal/connector/websocket"
	"wsbridge/internal/metrics"
	"wsbridge/internal/middleware"
	"wsbridge/internal/middleware/cors"
	"wsbridge/internal/middleware/recovery"
	"wsbridge/internal/resolver"
	"wsbridge/internal/routes"
	routesRedis "wsbridge/internal/routes/redis"
	"wsbridge/internal/telemetry"
	"wsbridge/pkg/errors"
)

// HealthPath serves the liveness probe
const HealthPath = "/healthz"

// Server accepts client WebSocket connections and bridges each one to its
// upstream
type Server struct {
	config      *config.Config
	resolver    *resolver.Resolver
	connector   *wsConnector.Connector
	cors        *cors.CORS
	upgrader    *websocket.Upgrader
	registry    *Registry
	static      *routes.StaticTable
	publisher   *routesRedis.Table
	metrics     *metrics.Metrics
	telemetry   *telemetry.Telemetry
	instruments *telemetry.BridgeInstruments
	closers     []func(context.Context) error
	logger      *slog.Logger

	mu           sync.Mutex
	server       *http.Server
	listener     net.Listener
	running      bool
	serverCtx    context.Context
	serverCancel context.CancelFunc
	bridges      sync.WaitGroup
	closeOnce    sync.Once

	publishMu sync.Mutex
	published []routes.Route
}

// NewServer creates a server from cfg
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewBuilder(cfg, logger).Build()
}

// Registry returns the live bridge registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// ReloadRoutes swaps the static route table and, when publishing is
// enabled, syncs it to Redis. Bridges already running keep their upstream.
func (s *Server) ReloadRoutes(table []routes.Route) {
	s.static.Replace(table)
	s.logger.Info("Routes reloaded", "routes", s.static.Len())

	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := s.publishRoutes(ctx, table); err != nil {
		s.logger.Error("Failed to publish routes", "error", err)
	}
}

// publishRoutes writes table to the Redis hash and removes the routes an
// earlier publish stored that table no longer names
func (s *Server) publishRoutes(ctx context.Context, table []routes.Route) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if err := s.publisher.Sync(ctx, s.published, table); err != nil {
		return fmt.Errorf("publishing routes: %w", err)
	}
	s.published = append([]routes.Route(nil), table...)
	s.logger.Debug("Routes published", "routes", len(table))
	return nil
}

// Handler returns the full HTTP handler: panic recovery, request logging
// and CORS around the health, metrics and proxy endpoints
func (s *Server) Handler() http.Handler {
	return middleware.Chain(
		recovery.Default(s.logger),
		middleware.Logging(s.logger),
		s.cors.Handler,
	)(http.HandlerFunc(s.route))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == HealthPath && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case s.metricsEnabled() && r.URL.Path == s.config.Metrics.Path && r.Method == http.MethodGet:
		s.metrics.Handler().ServeHTTP(w, r)
	default:
		s.ServeHTTP(w, r)
	}
}

func (s *Server) metricsEnabled() bool {
	return s.config.Metrics.Enabled && s.config.Metrics.Path != "" && s.metrics != nil
}

// ServeHTTP resolves the upstream for the request, upgrades the client
// connection and runs a bridge for it until the bridge ends. Requests that
// cannot be resolved are answered with a JSON error and never upgraded.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.cors.Apply(w.Header())
	if cors.IsPreflight(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		s.writeError(w, r, errors.Validation("websocket upgrade required"))
		return
	}

	upstream, err := s.resolver.Resolve(r.Context(), r.URL.EscapedPath(), r.Header)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	header := wsConnector.ForwardHeaders(r)
	upstreamPath := resolver.UpstreamPath(r.URL.EscapedPath(), r.URL.RawQuery)

	ctx, ok := s.bridgeContext()
	if !ok {
		s.writeError(w, r, errors.BadGateway("server is shutting down"))
		return
	}
	defer s.bridges.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the request
		return
	}
	if s.config.Proxy.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.Proxy.MaxMessageSize)
	}

	if s.telemetry != nil {
		ctx = s.telemetry.ExtractHTTPHeaders(ctx, r.Header)
	}

	b := bridge.New(s.bridgeConfig(), conn, bridge.Request{
		ID:           uuid.NewString(),
		Path:         r.URL.EscapedPath(),
		UpstreamPath: upstreamPath,
		Header:       header,
		Upstream:     upstream,
	}, s.dial,
		bridge.WithLogger(s.logger),
		bridge.WithMetrics(s.metrics),
		bridge.WithTelemetry(s.telemetry, s.instruments),
		bridge.WithResolver(s.resolver),
	)

	s.registry.Add(b)
	defer s.registry.Remove(b.ID())

	if err := b.Run(ctx); err != nil {
		s.logger.Debug("Bridge ended with error",
			"id", b.ID(),
			"code", errors.Normalize(err).Code(),
		)
	}
}

// bridgeContext returns the context bridges run under and reserves a slot
// in the shutdown wait group. It fails once the server is stopping.
func (s *Server) bridgeContext() (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverCtx.Err() != nil {
		return nil, false
	}
	s.bridges.Add(1)
	return s.serverCtx, true
}

func (s *Server) bridgeConfig() bridge.Config {
	return bridge.Config{
		IdleTimeout:      s.config.Timing.IdleTimeout(),
		RetryDelay:       s.config.Timing.RetryDelay(),
		MaxRetries:       s.config.Timing.MaxRetries,
		MaxPendingFrames: s.config.Proxy.MaxPendingFrames,
	}
}

func (s *Server) dial(ctx context.Context, upstream resolver.UpstreamInfo, path string, header http.Header) (bridge.Conn, error) {
	conn, err := s.connector.Dial(ctx, upstream, path, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorStatus(w, r, 0, err)
}

// writeErrorStatus answers with err under status, or under the status mapped
// from err when status is zero
func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	e := errors.Normalize(err)
	s.metrics.RequestError(e.Code())
	s.logger.Info("Request rejected",
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"code", e.Code(),
		"error", e.Message,
	)
	errors.WriteJSONStatus(w, status, e)
}

type healthResponse struct {
	Status  string `json:"status"`
	Bridges int    `json:"bridges"`
	Routes  int    `json:"routes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Bridges: s.registry.Len(),
		Routes:  s.static.Len(),
	})
}

// Start binds the listener and serves in the background. Cancelling ctx
// stops the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.NewError(errors.KindInternal, "server already running")
	}
	if s.serverCtx.Err() != nil {
		return errors.NewError(errors.KindInternal, "server already stopped")
	}

	addr := net.JoinHostPort(s.config.Proxy.Host, fmt.Sprint(s.config.Proxy.Port))

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	var err error
	s.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return errors.NewError(errors.KindInternal, fmt.Sprintf("failed to bind listener to %s", addr)).
			WithCause(err)
	}

	s.running = true
	s.logger.Info("Proxy listening", "address", s.listener.Addr().String())

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Proxy server error", "error", err)
		}
	}(s.server, s.listener)

	go func() {
		select {
		case <-ctx.Done():
		case <-s.serverCtx.Done():
			return
		}
		if err := s.Stop(context.Background()); err != nil {
			s.logger.Error("Error stopping proxy", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every bridge, shuts the listener down and waits for the
// bridges to finish or ctx to expire
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.serverCancel()
	srv := s.server
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping proxy", "bridges", s.registry.Len())

	var errs []error
	if wasRunning && srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down listener: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		s.bridges.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for bridges: %w", ctx.Err()))
	}

	s.closeOnce.Do(func() {
		for _, closer := range s.closers {
			if err := closer(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})

	if len(errs) > 0 {
		return errors.NewError(errors.KindInternal, "errors during shutdown").
			WithCause(stderrors.Join(errs...))
	}

	s.logger.Info("Proxy stopped")
	return nil
}

// makeCheckOrigin accepts any origin the CORS policy allows
func makeCheckOrigin(policy cors.Config) func(r *http.Request) bool {
	allowed := strings.TrimSpace(policy.AllowOrigin)
	if allowed == "" || allowed == "*" {
		return func(r *http.Request) bool { return true }
	}

	origins := make(map[string]bool)
	for _, o := range strings.Split(allowed, ",") {
		origins[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return origins[u.Scheme+"://"+u.Host]
	}
}

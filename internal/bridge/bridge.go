package bridge

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"wsbridge/internal/metrics"
	"wsbridge/internal/resolver"
	"wsbridge/internal/retry"
	"wsbridge/internal/telemetry"
	"wsbridge/pkg/errors"
)

// Config holds the per-bridge timing values
type Config struct {
	// IdleTimeout closes an active bridge after this long without a frame
	// in either direction. Zero disables the timer.
	IdleTimeout time.Duration
	// RetryDelay is the wait before each upstream connect retry
	RetryDelay time.Duration
	// MaxRetries is the number of connect retries after the first attempt
	MaxRetries int
	// MaxPendingFrames bounds the client frames queued while connecting.
	// Exceeding it fails the bridge. Zero means no bound.
	MaxPendingFrames int
}

// DefaultConfig returns the default timing values
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      255 * time.Second,
		RetryDelay:       100 * time.Millisecond,
		MaxRetries:       1,
		MaxPendingFrames: 1024,
	}
}

// Request describes the accepted client connection
type Request struct {
	// ID identifies the bridge in logs and the registry
	ID string
	// Path is the escaped request path used for resolution
	Path string
	// UpstreamPath is the path and query sent to the upstream
	UpstreamPath string
	// Header is forwarded on the upstream handshake
	Header http.Header
	// Upstream is the target resolved before the client was accepted
	Upstream resolver.UpstreamInfo
}

// Option configures a bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTelemetry enables tracing and distribution metrics
func WithTelemetry(t *telemetry.Telemetry, inst *telemetry.BridgeInstruments) Option {
	return func(b *Bridge) {
		b.telemetry = t
		b.instruments = inst
	}
}

// WithResolver re-resolves the upstream on every retry
func WithResolver(r Resolver) Option {
	return func(b *Bridge) {
		b.resolver = r
	}
}

// Bridge relays frames between one client connection and its upstream
type Bridge struct {
	config      Config
	req         Request
	client      Conn
	dial        DialFunc
	resolver    Resolver
	retrier     *retry.Retrier
	logger      *slog.Logger
	metrics     *metrics.Metrics
	telemetry   *telemetry.Telemetry
	instruments *telemetry.BridgeInstruments

	state atomic.Int32

	// owned by the Run goroutine
	upstream Conn
	pending  []Frame

	clientOnce   sync.Once
	upstreamOnce sync.Once

	mu   sync.Mutex
	err  error
	done chan struct{}
}

// New creates a bridge in the connecting state. Run starts it.
func New(config Config, client Conn, req Request, dial DialFunc, opts ...Option) *Bridge {
	b := &Bridge{
		config: config,
		req:    req,
		client: client,
		dial:   dial,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger = b.logger.With("component", "bridge", "id", req.ID)
	b.retrier = retry.New(retry.Config{
		MaxRetries: config.MaxRetries,
		Delay:      config.RetryDelay,
		OnRetry: func(n int, err error) {
			b.metrics.ConnectRetry()
			b.logger.Warn("Retrying upstream connect",
				"retry", n,
				"delay", config.RetryDelay,
				"error", err,
			)
		},
	})
	b.state.Store(int32(StateConnecting))

	return b
}

// ID returns the bridge id
func (b *Bridge) ID() string {
	return b.req.ID
}

// State returns the current state
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Done is closed once the bridge reached a terminal state
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns the failure that ended the bridge, nil after a clean close
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

type dialResult struct {
	conn Conn
	err  error
}

// Run drives the bridge until it is closed or failed. Cancelling ctx closes
// the bridge. The returned error is the same as Err.
func (b *Bridge) Run(ctx context.Context) error {
	start := time.Now()
	b.metrics.BridgeOpened()

	spanCtx := ctx
	if b.telemetry != nil {
		var span trace.Span
		spanCtx, span = b.telemetry.StartBridgeSpan(ctx, b.req.ID, b.req.Path,
			attribute.String("upstream.addr", b.req.Upstream.Addr()),
		)
		defer func() { telemetry.EndBridgeSpan(span, b.Err()) }()
	}

	b.logger.Info("Bridge connecting",
		"path", b.req.Path,
		"upstream", b.req.Upstream.Addr(),
	)

	stop := make(chan struct{})
	defer close(stop)

	clientFrames := make(chan Frame)
	clientErr := make(chan error, 1)
	go readLoop(b.client, clientFrames, clientErr, stop)

	dialCtx, cancelDial := context.WithCancel(spanCtx)
	defer cancelDial()
	connected := make(chan dialResult, 1)
	go func() {
		conn, err := b.connect(dialCtx)
		connected <- dialResult{conn: conn, err: err}
	}()

	var (
		upstreamFrames chan Frame
		upstreamErr    chan error
		idle           *time.Timer
		idleC          <-chan time.Time
	)
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	resetIdle := func() {
		if idle != nil {
			idle.Reset(b.config.IdleTimeout)
		}
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("Bridge shutting down")
			b.finish(spanCtx, connected, cancelDial, nil, websocket.CloseGoingAway, "shutdown")
			return b.complete(spanCtx, start)

		case res := <-connected:
			connected = nil
			if res.err != nil {
				b.metrics.ConnectFailed()
				b.finish(spanCtx, nil, cancelDial, asBadGateway(res.err), 0, "")
				return b.complete(spanCtx, start)
			}

			b.upstream = res.conn
			b.instruments.RecordConnect(spanCtx, time.Since(start))
			if err := b.flush(spanCtx); err != nil {
				b.finish(spanCtx, nil, cancelDial, err, 0, "")
				return b.complete(spanCtx, start)
			}

			b.transition(spanCtx, StateActive)
			b.logger.Info("Bridge active", "upstream", b.req.Upstream.Addr())

			upstreamFrames = make(chan Frame)
			upstreamErr = make(chan error, 1)
			go readLoop(b.upstream, upstreamFrames, upstreamErr, stop)

			if b.config.IdleTimeout > 0 {
				idle = time.NewTimer(b.config.IdleTimeout)
				idleC = idle.C
			}

		case f := <-clientFrames:
			if b.State() == StateConnecting {
				if b.config.MaxPendingFrames > 0 && len(b.pending) >= b.config.MaxPendingFrames {
					failure := errors.BadGateway("too many frames queued while connecting").
						WithDetail("limit", b.config.MaxPendingFrames)
					b.finish(spanCtx, connected, cancelDial, failure, 0, "")
					return b.complete(spanCtx, start)
				}
				b.pending = append(b.pending, f)
				b.metrics.FrameBuffered()
				continue
			}
			if err := b.forward(b.upstream, f, metrics.DirectionClientToUpstream); err != nil {
				b.logger.Warn("Error writing to upstream", "error", err)
				b.finish(spanCtx, connected, cancelDial, upstreamBroken(err), 0, "")
				return b.complete(spanCtx, start)
			}
			resetIdle()

		case f := <-upstreamFrames:
			if err := b.forward(b.client, f, metrics.DirectionUpstreamToClient); err != nil {
				b.logger.Debug("Error writing to client", "error", err)
				b.finish(spanCtx, connected, cancelDial, nil, websocket.CloseNormalClosure, "")
				return b.complete(spanCtx, start)
			}
			resetIdle()

		case err := <-clientErr:
			logPeerClose(b.logger, "client", err)
			b.finish(spanCtx, connected, cancelDial, nil, websocket.CloseNormalClosure, "")
			return b.complete(spanCtx, start)

		case err := <-upstreamErr:
			logPeerClose(b.logger, "upstream", err)
			var failure error
			if !isNormalClose(err) {
				failure = upstreamBroken(err)
			}
			b.finish(spanCtx, nil, cancelDial, failure, websocket.CloseNormalClosure, "")
			return b.complete(spanCtx, start)

		case <-idleC:
			b.logger.Info("Bridge idle timeout", "timeout", b.config.IdleTimeout)
			b.metrics.IdleTimeout()
			b.finish(spanCtx, nil, cancelDial, nil, websocket.CloseNormalClosure, "idle timeout")
			return b.complete(spanCtx, start)
		}
	}
}

// connect resolves and dials the upstream with the bridge's retry policy.
// The first attempt uses the upstream resolved at accept time.
func (b *Bridge) connect(ctx context.Context) (Conn, error) {
	header := b.req.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if b.telemetry != nil {
		b.telemetry.InjectHTTPHeaders(ctx, header)
	}

	attempt := 0
	return retry.Value(ctx, b.retrier, func(ctx context.Context) (Conn, error) {
		attempt++
		upstream := b.req.Upstream
		if attempt > 1 && b.resolver != nil {
			resolved, err := b.resolver.Resolve(ctx, b.req.Path, b.req.Header)
			if err != nil {
				if unresolvable(err) {
					return nil, retry.NewNonRetryableError(err)
				}
				return nil, err
			}
			upstream = resolved
		}

		conn, err := b.dial(ctx, upstream, b.req.UpstreamPath, header)
		if err != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return nil, err
		}
		return conn, nil
	})
}

// flush writes every queued client frame to the upstream in arrival order
func (b *Bridge) flush(ctx context.Context) error {
	n := len(b.pending)
	for _, f := range b.pending {
		if err := b.forward(b.upstream, f, metrics.DirectionClientToUpstream); err != nil {
			b.pending = nil
			return upstreamBroken(err)
		}
	}
	b.pending = nil

	if n > 0 {
		b.logger.Debug("Flushed queued frames", "count", n)
		b.instruments.RecordFlush(ctx, n)
	}
	return nil
}

// forward writes f to dst unchanged
func (b *Bridge) forward(dst Conn, f Frame, direction string) error {
	if err := dst.WriteMessage(f.Type, f.Data); err != nil {
		return err
	}
	b.metrics.FrameForwarded(direction, frameTypeName(f.Type), len(f.Data))
	return nil
}

// finish moves the bridge to Closed. A pending dial is cancelled and a
// connection it still produces is closed. The upstream is closed before the
// client. A nil failure is a clean close through Closing; otherwise the
// bridge passes through Failed and the client is closed without a close
// frame. closeCode, when non-zero, is sent to the peers of a clean close.
func (b *Bridge) finish(ctx context.Context, connected <-chan dialResult, cancelDial context.CancelFunc, failure error, closeCode int, reason string) {
	if failure != nil {
		b.mu.Lock()
		b.err = failure
		b.mu.Unlock()

		b.logger.Warn("Bridge failed", "error", failure)
		telemetry.RecordError(ctx, failure)
		b.transition(ctx, StateFailed)
		closeCode, reason = 0, ""
	} else {
		b.transition(ctx, StateClosing)
	}

	cancelDial()
	if connected != nil {
		if res := <-connected; res.conn != nil {
			_ = res.conn.Close()
		}
	}

	b.closeUpstream(closeCode, reason)
	b.closeClient(closeCode, reason)
	b.pending = nil

	b.transition(ctx, StateClosed)
}

// complete records the outcome and releases waiters
func (b *Bridge) complete(ctx context.Context, start time.Time) error {
	err := b.Err()
	outcome := metrics.OutcomeClosed
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	b.metrics.BridgeFinished(outcome)
	b.instruments.RecordDuration(ctx, outcome, time.Since(start))

	b.logger.Info("Bridge finished",
		"outcome", outcome,
		"duration", time.Since(start),
	)

	close(b.done)
	return err
}

// closeUpstream closes the upstream connection at most once
func (b *Bridge) closeUpstream(code int, reason string) {
	b.upstreamOnce.Do(func() {
		if b.upstream == nil {
			return
		}
		if code != 0 {
			sendClose(b.upstream, code, reason)
		}
		if err := b.upstream.Close(); err != nil {
			b.logger.Debug("Error closing upstream", "error", err)
		}
	})
}

// closeClient closes the client connection at most once
func (b *Bridge) closeClient(code int, reason string) {
	b.clientOnce.Do(func() {
		if code != 0 {
			sendClose(b.client, code, reason)
		}
		if err := b.client.Close(); err != nil {
			b.logger.Debug("Error closing client", "error", err)
		}
	})
}

func (b *Bridge) transition(ctx context.Context, to State) {
	from := State(b.state.Swap(int32(to)))
	if from == to {
		return
	}
	b.logger.Debug("Bridge state change", "from", from.String(), "to", to.String())
	b.metrics.Transition(to.String())
	telemetry.AddEvent(ctx, to.String())
}

// asBadGateway reports a failed connect as a bad gateway error
func asBadGateway(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindBadGateway {
		return e
	}
	return errors.BadGateway("").WithCause(err)
}

// unresolvable reports whether a re-resolve failed because the route is
// gone or the request no longer addresses one
func unresolvable(err error) bool {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == errors.KindNotFound || e.Kind == errors.KindValidation
}

// upstreamBroken reports a failed upstream write or read
func upstreamBroken(err error) error {
	return errors.BadGateway("upstream connection lost").WithCause(err)
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func logPeerClose(logger *slog.Logger, peer string, err error) {
	if isNormalClose(err) {
		logger.Debug("Peer closed connection", "peer", peer)
		return
	}
	logger.Debug("Peer read ended", "peer", peer, "error", err)
}

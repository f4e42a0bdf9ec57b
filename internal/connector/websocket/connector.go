package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"wsbridge/internal/resolver"
	"wsbridge/pkg/errors"
)

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:  10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxMessageSize:    1024 * 1024, // 1MB
	}
}

// Connector dials upstream WebSocket services
type Connector struct {
	config *Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewConnector creates a new WebSocket connector
func NewConnector(config *Config, logger *slog.Logger) *Connector {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout:  config.HandshakeTimeout,
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		EnableCompression: config.EnableCompression,
		NetDialContext: (&net.Dialer{
			Timeout: config.ConnectionTimeout,
		}).DialContext,
	}

	return &Connector{
		config: config,
		dialer: dialer,
		logger: logger.With("component", "connector.websocket"),
	}
}

// Dial opens a WebSocket connection to ws://{hostname}:{port}{path}.
// Every failure is reported as a bad gateway error.
func (c *Connector) Dial(ctx context.Context, upstream resolver.UpstreamInfo, path string, headers http.Header) (*websocket.Conn, error) {
	target := upstream.URL(path)

	c.logger.Debug("Connecting to upstream", "url", target)

	conn, resp, err := c.dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			c.logger.Warn("Upstream handshake failed",
				"url", target,
				"status", resp.StatusCode,
				"error", err,
			)
			return nil, errors.BadGateway(
				fmt.Sprintf("upstream handshake failed: %d", resp.StatusCode),
			).WithCause(err).
				WithDetail("url", target).
				WithDetail("status", resp.StatusCode)
		}
		c.logger.Warn("Failed to connect to upstream",
			"url", target,
			"error", err,
		)
		return nil, errors.BadGateway("failed to connect to upstream").
			WithCause(err).
			WithDetail("url", target)
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	return conn, nil
}

// handshakeHeaders are set by the dialer itself and must not be forwarded
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Protocol":   true,
	"Host":                     true,
	"Content-Length":           true,
	"Keep-Alive":               true,
	"Proxy-Connection":         true,
	"Te":                       true,
	"Trailer":                  true,
	"Transfer-Encoding":        true,
}

// ForwardHeaders copies the client request headers that may be passed on
// to the upstream handshake and appends the client address to
// X-Forwarded-For.
func ForwardHeaders(r *http.Request) http.Header {
	out := make(http.Header, len(r.Header))
	for k, vs := range r.Header {
		if handshakeHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && ip != "" {
		if prior := out.Get("X-Forwarded-For"); prior != "" {
			ip = strings.Join([]string{prior, ip}, ", ")
		}
		out.Set("X-Forwarded-For", ip)
	}
	if r.Host != "" && out.Get("X-Forwarded-Host") == "" {
		out.Set("X-Forwarded-Host", r.Host)
	}

	return out
}

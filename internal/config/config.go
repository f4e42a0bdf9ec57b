package config

import (
	"time"

	"wsbridge/internal/middleware/cors"
	"wsbridge/internal/routes"
	"wsbridge/internal/telemetry"
)

// Config holds bridge configuration
type Config struct {
	Proxy     Proxy     `yaml:"proxy"`
	Timing    Timing    `yaml:"timing"`
	CORS      CORS      `yaml:"cors"`
	Routes    []Route   `yaml:"routes"`
	Redis     *Redis    `yaml:"redis,omitempty"`
	Metrics   Metrics   `yaml:"metrics"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Proxy configures the inbound listener and upgrader
type Proxy struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadBufferSize  int    `yaml:"readBufferSize"`
	WriteBufferSize int    `yaml:"writeBufferSize"`
	MaxMessageSize  int64  `yaml:"maxMessageSize"`
	// MaxPendingFrames bounds client frames queued while the upstream
	// connects; 0 disables the bound
	MaxPendingFrames int `yaml:"maxPendingFrames"`
}

// Timing holds the process-wide timing values. Read-only after start.
type Timing struct {
	IdleTimeoutSeconds      int `yaml:"idleTimeoutSeconds"`
	RetryDelayMilliseconds  int `yaml:"retryDelayMilliseconds"`
	MaxRetries              int `yaml:"maxRetries"`
	HandshakeTimeoutSeconds int `yaml:"handshakeTimeoutSeconds"`
}

// IdleTimeout returns the idle timeout as a duration
func (t Timing) IdleTimeout() time.Duration {
	return time.Duration(t.IdleTimeoutSeconds) * time.Second
}

// RetryDelay returns the delay between upstream connect attempts
func (t Timing) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMilliseconds) * time.Millisecond
}

// HandshakeTimeout returns the upstream handshake timeout
func (t Timing) HandshakeTimeout() time.Duration {
	return time.Duration(t.HandshakeTimeoutSeconds) * time.Second
}

// CORS holds the static header values applied to every response
type CORS struct {
	AllowOrigin  string `yaml:"allowOrigin"`
	AllowMethods string `yaml:"allowMethods"`
	AllowHeaders string `yaml:"allowHeaders"`
	MaxAge       int    `yaml:"maxAge"`
}

// Route maps a target name to an upstream host
type Route struct {
	Name     string `yaml:"name"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Ports    []int  `yaml:"ports"`
}

// Redis configures the optional Redis-backed route table
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	// Publish writes the configured routes into the hash on start and on
	// every reload, so instances sharing it resolve them too
	Publish bool `yaml:"publish"`
}

// Metrics configures the Prometheus endpoint
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Telemetry configures OpenTelemetry tracing
type Telemetry struct {
	Enabled    bool    `yaml:"enabled"`
	Service    string  `yaml:"service"`
	Version    string  `yaml:"version"`
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sampleRate"`
}

// ToRoute converts to routes.Route
func (r *Route) ToRoute() routes.Route {
	return routes.Route{
		Name:     r.Name,
		Hostname: r.Hostname,
		Port:     r.Port,
		Ports:    append([]int(nil), r.Ports...),
	}
}

// RouteTable converts all configured routes
func (c *Config) RouteTable() []routes.Route {
	out := make([]routes.Route, 0, len(c.Routes))
	for i := range c.Routes {
		out = append(out, c.Routes[i].ToRoute())
	}
	return out
}

// ToPolicy converts to the CORS policy configuration
func (c CORS) ToPolicy() cors.Config {
	return cors.Config{
		AllowOrigin:  c.AllowOrigin,
		AllowMethods: c.AllowMethods,
		AllowHeaders: c.AllowHeaders,
		MaxAge:       c.MaxAge,
	}
}

// ToTelemetry converts to the telemetry configuration
func (t Telemetry) ToTelemetry() telemetry.Config {
	return telemetry.Config{
		Enabled:    t.Enabled,
		Service:    t.Service,
		Version:    t.Version,
		Endpoint:   t.Endpoint,
		Insecure:   t.Insecure,
		SampleRate: t.SampleRate,
	}
}

package cors

import (
	"net/http"
	"strconv"
)

// Config holds the static CORS header values
type Config struct {
	// AllowOrigin is the Access-Control-Allow-Origin value
	AllowOrigin string
	// AllowMethods is the Access-Control-Allow-Methods value
	AllowMethods string
	// AllowHeaders is the Access-Control-Allow-Headers value
	AllowHeaders string
	// MaxAge is how long (in seconds) preflight results may be cached
	MaxAge int
}

// DefaultConfig returns an allow-all CORS configuration
func DefaultConfig() Config {
	return Config{
		AllowOrigin:  "*",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		AllowHeaders: "*",
		MaxAge:       86400, // 24 hours
	}
}

// CORS applies the same headers to every response
type CORS struct {
	config Config
	maxAge string
}

// New creates a CORS policy. Empty values fall back to the defaults.
func New(config Config) *CORS {
	defaults := DefaultConfig()
	if config.AllowOrigin == "" {
		config.AllowOrigin = defaults.AllowOrigin
	}
	if config.AllowMethods == "" {
		config.AllowMethods = defaults.AllowMethods
	}
	if config.AllowHeaders == "" {
		config.AllowHeaders = defaults.AllowHeaders
	}
	if config.MaxAge < 0 {
		config.MaxAge = 0
	}

	return &CORS{
		config: config,
		maxAge: strconv.Itoa(config.MaxAge),
	}
}

// Config returns the effective configuration
func (c *CORS) Config() Config {
	return c.config
}

// Apply sets the four CORS headers on h
func (c *CORS) Apply(h http.Header) {
	h.Set("Access-Control-Allow-Origin", c.config.AllowOrigin)
	h.Set("Access-Control-Allow-Methods", c.config.AllowMethods)
	h.Set("Access-Control-Allow-Headers", c.config.AllowHeaders)
	h.Set("Access-Control-Max-Age", c.maxAge)
}

// IsPreflight reports whether r is answered by the policy alone
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}

// Handler returns an HTTP handler that applies CORS headers to every
// response and answers preflight requests with 204 and no body.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Apply(w.Header())

		if IsPreflight(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

package config

import (
	"fmt"
	"os"
	"regexp"

	"wsbridge/pkg/errors"
	"gopkg.in/yaml.v3"
)

var routeNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Loader loads configuration from file
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a config loader. An empty path loads the embedded
// defaults only.
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		envEnabled: true,
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load loads the configuration: embedded defaults, then the file, then env
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.KindInternal, "failed to parse default config").WithCause(err)
	}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.NewError(errors.KindInternal, "failed to read config file").WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.NewError(errors.KindInternal, "failed to parse config").WithCause(err)
		}
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.KindInternal, "failed to load env vars").WithCause(err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Validation("invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// Load loads the configuration at path with environment overrides
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if cfg.Proxy.Port <= 0 || cfg.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy port: %d", cfg.Proxy.Port)
	}
	if cfg.Proxy.MaxPendingFrames < 0 {
		return fmt.Errorf("maxPendingFrames must not be negative")
	}

	if cfg.Timing.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("idleTimeoutSeconds must be positive")
	}
	if cfg.Timing.RetryDelayMilliseconds < 0 {
		return fmt.Errorf("retryDelayMilliseconds must not be negative")
	}
	if cfg.Timing.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative")
	}

	if cfg.CORS.MaxAge < 0 {
		return fmt.Errorf("cors maxAge must not be negative")
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, route := range cfg.Routes {
		if !routeNameRe.MatchString(route.Name) {
			return fmt.Errorf("route %d: invalid name %q", i, route.Name)
		}
		if seen[route.Name] {
			return fmt.Errorf("route %d: duplicate name %q", i, route.Name)
		}
		seen[route.Name] = true
		if route.Hostname == "" {
			return fmt.Errorf("route %s: hostname is required", route.Name)
		}
		if route.Port <= 0 || route.Port > 65535 {
			return fmt.Errorf("route %s: invalid port %d", route.Name, route.Port)
		}
		for _, p := range route.Ports {
			if p <= 0 || p > 65535 {
				return fmt.Errorf("route %s: invalid port %d", route.Name, p)
			}
		}
	}

	if cfg.Redis != nil && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is configured")
	}

	return nil
}

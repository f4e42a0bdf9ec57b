package config

import (
	"strings"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("WSBRIDGE_PROXY_HOST", "127.0.0.1")
	t.Setenv("WSBRIDGE_TIMING_IDLETIMEOUTSECONDS", "60")
	t.Setenv("WSBRIDGE_CORS_ALLOWORIGIN", "https://app.example.com")
	t.Setenv("WSBRIDGE_CORS_MAXAGE", "600")
	t.Setenv("WSBRIDGE_METRICS_ENABLED", "false")
	t.Setenv("WSBRIDGE_TELEMETRY_SAMPLERATE", "0.25")
	t.Setenv("WSBRIDGE_REDIS_ADDR", "redis:6379")
	t.Setenv("PROXY_PORT", "9091")

	cfg := &Config{
		Proxy:   Proxy{Host: "0.0.0.0", Port: 8080},
		Metrics: Metrics{Enabled: true},
	}

	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("LoadEnv failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"proxy host", cfg.Proxy.Host, "127.0.0.1"},
		{"proxy port", cfg.Proxy.Port, 9091},
		{"idle timeout", cfg.Timing.IdleTimeoutSeconds, 60},
		{"cors origin", cfg.CORS.AllowOrigin, "https://app.example.com"},
		{"cors max age", cfg.CORS.MaxAge, 600},
		{"metrics enabled", cfg.Metrics.Enabled, false},
		{"sample rate", cfg.Telemetry.SampleRate, 0.25},
		{"redis created", cfg.Redis != nil && cfg.Redis.Addr == "redis:6379", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, expected %v", tt.got, tt.expected)
			}
		})
	}
}

func TestLoadEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
	}{
		{"invalid int", "WSBRIDGE_TIMING_MAXRETRIES", "many"},
		{"invalid bool", "WSBRIDGE_METRICS_ENABLED", "maybe"},
		{"invalid float", "WSBRIDGE_TELEMETRY_SAMPLERATE", "half"},
		{"invalid proxy port", "PROXY_PORT", "eighty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)

			if err := LoadEnv(&Config{}); err == nil {
				t.Errorf("LoadEnv() should fail for %s=%s", tt.envVar, tt.value)
			}
		})
	}
}

func TestEnvExample(t *testing.T) {
	examples := EnvExample(&Config{})

	expectedPrefixes := []string{
		"PROXY_PORT=",
		"WSBRIDGE_PROXY_PORT=",
		"WSBRIDGE_TIMING_IDLETIMEOUTSECONDS=",
		"WSBRIDGE_CORS_ALLOWORIGIN=",
		"WSBRIDGE_REDIS_ADDR=",
	}

	for _, prefix := range expectedPrefixes {
		found := false
		for _, example := range examples {
			if strings.HasPrefix(example, prefix) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected to find example starting with %s", prefix)
		}
	}

	for _, example := range examples {
		if strings.HasPrefix(example, "WSBRIDGE_ROUTES") {
			t.Errorf("routes should not be configurable from env: %s", example)
		}
	}
}

func TestHasEnvVarsWithPrefix(t *testing.T) {
	t.Setenv("WSBRIDGE_TEST_VAR", "value")

	if !hasEnvVarsWithPrefix("WSBRIDGE_TEST") {
		t.Error("expected WSBRIDGE_TEST prefix to be found")
	}
	if hasEnvVarsWithPrefix("WSBRIDGE_MISSING_PREFIX") {
		t.Error("did not expect WSBRIDGE_MISSING_PREFIX to be found")
	}
}

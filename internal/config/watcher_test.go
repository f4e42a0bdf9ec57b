package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watchedConfig = `
routes:
  - name: chat
    hostname: chat.internal
    port: 3000
`

const updatedConfig = `
routes:
  - name: chat
    hostname: chat.internal
    port: 3000
  - name: feed
    hostname: feed.internal
    port: 4000
`

func TestWatcher(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "wsbridge.yaml")
	if err := os.WriteFile(configPath, []byte(watchedConfig), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *Config, 8)
	watcher, err := NewWatcher(configPath, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(cfg *Config) error {
			changes <- cfg
			return nil
		},
		OnError: func(err error) {
			t.Errorf("Watcher error: %v", err)
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	watcher.Start()
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configPath, []byte(updatedConfig), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if len(cfg.Routes) != 2 {
			t.Errorf("expected 2 routes after reload, got %d", len(cfg.Routes))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcherInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "wsbridge.yaml")
	if err := os.WriteFile(configPath, []byte(watchedConfig), 0644); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 8)
	watcher, err := NewWatcher(configPath, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnError: func(err error) {
			errs <- err
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	watcher.Start()
	defer watcher.Stop()

	time.Sleep(100 * time.Millisecond)

	invalid := "routes:\n  - name: chat\n    port: 3000\n"
	if err := os.WriteFile(configPath, []byte(invalid), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errs:
	case <-time.After(3 * time.Second):
		t.Fatal("expected validation error")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "wsbridge.yaml")
	if err := os.WriteFile(configPath, []byte(watchedConfig), 0644); err != nil {
		t.Fatal(err)
	}

	watcher, err := NewWatcher(configPath, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	watcher.Start()

	if err := watcher.Stop(); err != nil {
		t.Errorf("first Stop() error = %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

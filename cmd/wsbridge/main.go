package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wsbridge/internal/app"
	"wsbridge/internal/config"
)

var (
	configFile = flag.String("config", "", "config file path (embedded defaults when empty)")
	logLevel   = flag.String("log-level", "info", "log level")
	watch      = flag.Bool("watch", true, "reload routes when the config file changes")
)

func main() {
	flag.Parse()

	setupLogging(*logLevel)

	cfg, err := config.NewLoader(*configFile).Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	server, err := app.NewServer(cfg, slog.Default())
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if *configFile != "" && *watch {
		watcher, err := config.NewWatcher(*configFile, &config.WatcherConfig{
			DebounceDuration: 500 * time.Millisecond,
			OnChange: func(newConfig *config.Config) error {
				server.ReloadRoutes(newConfig.RouteTable())
				return nil
			},
			OnError: func(err error) {
				slog.Warn("config reload failed", "error", err)
			},
		}, slog.Default())
		if err != nil {
			slog.Error("failed to watch config", "error", err)
			os.Exit(1)
		}
		watcher.Start()
		defer watcher.Stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop server", "error", err)
		os.Exit(1)
	}
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level string) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}

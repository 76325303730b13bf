// Command callbridged is the real-time audio bridge daemon. It taps call
// media, forwards it to WebSocket sinks, and injects sink audio back into
// the call, driven by a line-based TCP control protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callbridge-io/callbridge/internal/app"
	"github.com/callbridge-io/callbridge/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", false, "reload the config file when it changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callbridged: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callbridged: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("callbridged starting",
		"config", *configPath,
		"control_addr", cfg.Server.ControlAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, level)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		watcher, err := config.NewWatcher(*configPath, application.ApplyConfigChange)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

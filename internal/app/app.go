// Package app wires all callbridge subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes them until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithTap, WithDialer). When an option is not provided, New creates the
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/callbridge-io/callbridge/internal/bridge"
	"github.com/callbridge-io/callbridge/internal/config"
	"github.com/callbridge-io/callbridge/internal/control"
	"github.com/callbridge-io/callbridge/internal/health"
	"github.com/callbridge-io/callbridge/internal/notify"
	"github.com/callbridge-io/callbridge/internal/observe"
	"github.com/callbridge-io/callbridge/pkg/sink"
	sinkws "github.com/callbridge-io/callbridge/pkg/sink/ws"
	"github.com/callbridge-io/callbridge/pkg/tap"
	"github.com/callbridge-io/callbridge/pkg/tap/loopback"
)

// App owns all subsystem lifetimes and orchestrates the audio bridge.
type App struct {
	cfg   *config.Config
	level *slog.LevelVar

	notifier *notify.Notifier
	events   <-chan notify.Event
	bridge   *bridge.Bridge
	control  *control.Server
	httpSrv  *http.Server

	shutdownTelemetry func(context.Context) error
	stopOnce          sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*options)

type options struct {
	tap    tap.Tap
	dialer sink.Dialer
}

// WithTap injects a platform tap instead of the built-in loopback tap.
func WithTap(t tap.Tap) Option {
	return func(o *options) { o.tap = t }
}

// WithDialer injects a sink dialer instead of the WebSocket dialer built
// from the config.
func WithDialer(d sink.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// New assembles the bridge, control listener, and HTTP server from cfg.
// level is the handler level of the process logger; it is adjusted when the
// config file is hot-reloaded.
func New(ctx context.Context, cfg *config.Config, level *slog.LevelVar, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "callbridge",
	})
	if err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	if o.dialer == nil {
		o.dialer = sinkws.NewDialer(sinkOptions(cfg.Sink)...)
	}
	if o.tap == nil {
		o.tap = loopback.New()
	}

	notifier := notify.NewNotifier()

	b := bridge.New(o.tap, o.dialer, notifier, bridge.Options{
		DialTimeout:      cfg.Sink.DialTimeout.Std(),
		PlaybackCapacity: cfg.Playback.PlaybackCapacityBytes(),
		MetadataLimit:    cfg.Limits.MetadataBytes,
	})

	ctl := control.NewServer(cfg.Server.ControlAddr, b, slog.Default())

	a := &App{
		cfg:               cfg,
		level:             level,
		notifier:          notifier,
		events:            notifier.Subscribe(),
		bridge:            b,
		control:           ctl,
		shutdownTelemetry: shutdownTelemetry,
	}
	a.httpSrv = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           a.buildHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// sinkOptions converts the config's sink settings into dialer options.
func sinkOptions(cfg config.SinkConfig) []sinkws.Option {
	var opts []sinkws.Option
	if cfg.AuthToken != "" {
		opts = append(opts, sinkws.WithHeader("Authorization", "Bearer "+cfg.AuthToken))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, sinkws.WithHeader(k, v))
	}
	return opts
}

// buildHTTPHandler assembles the metrics and health mux wrapped in the
// request instrumentation middleware.
func (a *App) buildHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(a.bridge,
		health.Checker{Name: "control", Check: func(_ context.Context) error {
			if a.control.Addr() == nil {
				return errors.New("control listener not bound")
			}
			return nil
		}},
	)
	h.Register(mux)

	return observe.Middleware(observe.DefaultMetrics())(mux)
}

// Run starts the control listener, HTTP server, and event log pump, then
// blocks until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.control.Run(gctx)
	})

	g.Go(func() error {
		err := a.serveHTTP()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.logEvents(gctx)
		return nil
	})

	slog.Info("callbridge running",
		"control_addr", a.cfg.Server.ControlAddr,
		"http_addr", a.cfg.Server.HTTPAddr,
	)
	return g.Wait()
}

func (a *App) serveHTTP() error {
	if tls := a.cfg.Server.TLS; tls != nil {
		return a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return a.httpSrv.ListenAndServe()
}

// logEvents mirrors session events into the structured log. It returns when
// ctx is cancelled or the notifier closes.
func (a *App) logEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.events:
			if !ok {
				return
			}
			switch ev.Type {
			case notify.TypeError:
				slog.Warn("session event", "type", ev.Type, "call_id", ev.CallID, "reason", ev.Reason)
			case notify.TypeJSON, notify.TypePlay:
				slog.Debug("session event", "type", ev.Type, "call_id", ev.CallID, "body_bytes", len(ev.Body))
			default:
				slog.Info("session event", "type", ev.Type, "call_id", ev.CallID, "reason", ev.Reason)
			}
		}
	}
}

// ApplyConfigChange reacts to a hot-reloaded config. Only changes that are
// safe without a restart are applied; everything else is logged and ignored.
func (a *App) ApplyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	if d.LogLevelChanged {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SinkChanged || d.PlaybackChanged || d.LimitsChanged {
		slog.Warn("sink, playback, or limits changed in config file; restart to apply")
	}
}

// Shutdown tears down the bridge sessions, HTTP server, notifier, and
// telemetry in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.bridge.Shutdown(ctx)

		var errs []error
		if err := a.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		a.notifier.Close()
		if err := a.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, err)
		}
		shutdownErr = errors.Join(errs...)

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

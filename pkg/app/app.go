// Copyright 2024-2026 Aiku AI

// Package app wires the configured store, directory source and notifier into
// conversation sessions and runs the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/threadtag/pkg/api"
	"github.com/aiku/threadtag/pkg/config"
	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/email"
	"github.com/aiku/threadtag/pkg/matrix"
	"github.com/aiku/threadtag/pkg/mattermost"
	"github.com/aiku/threadtag/pkg/store"
	"github.com/aiku/threadtag/pkg/telegram"
)

// App owns the long-lived components. Each directory reload starts a new
// conversation session; sessions share the store, notifier and metrics.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *conversation.Metrics
	Store    store.Store
	Source   conversation.DirectorySource

	dispatcher *conversation.Dispatcher

	mu      sync.Mutex
	current *conversation.Controller
	retired []*conversation.Controller
}

var _ api.Backend = (*App)(nil)

// New opens the store and builds the directory source and notifier from cfg.
// The first session is started with StartSession or ReloadDirectory.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := conversation.NewMetrics(reg)

	src, err := NewDirectorySource(cfg, log)
	if err != nil {
		return nil, err
	}
	notifier, err := NewNotifier(cfg, log)
	if err != nil {
		return nil, err
	}
	renderer, err := conversation.NewRenderer(cfg.RenderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to compile notification templates: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database.Type, cfg.Database.URI, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Type, err)
	}

	return &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics,
		Store:    st,
		Source:   src,
		dispatcher: conversation.NewDispatcher(conversation.DispatcherConfig{
			Notifier:    notifier,
			Renderer:    renderer,
			Concurrency: cfg.Notifier.Concurrency,
			Metrics:     metrics,
			Log:         log,
		}),
	}, nil
}

// NewDirectorySource returns the configured directory source.
func NewDirectorySource(cfg *config.Config, log zerolog.Logger) (conversation.DirectorySource, error) {
	switch cfg.Directory.Source {
	case "static":
		return conversation.StaticSource(cfg.Directory.Identities), nil
	case "file":
		return conversation.FileSource(cfg.Directory.File), nil
	case "mattermost":
		src, err := mattermost.NewDirectorySource(cfg.MattermostConfig(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create mattermost directory source: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown directory source %q", cfg.Directory.Source)
	}
}

// NewNotifier returns the configured notifier wrapped in the configured rate
// limits.
func NewNotifier(cfg *config.Config, log zerolog.Logger) (conversation.Notifier, error) {
	var (
		notifier conversation.Notifier
		err      error
	)
	switch cfg.Notifier.Type {
	case "log":
		notifier = conversation.LogNotifier{Log: log.With().Str("component", "log_notifier").Logger()}
	case "smtp":
		notifier, err = email.NewNotifier(cfg.EmailConfig(), log)
	case "mattermost":
		notifier = mattermost.NewNotifier(cfg.MattermostConfig(), log)
	case "matrix":
		notifier, err = matrix.NewNotifier(cfg.MatrixConfig(), log)
	case "telegram":
		notifier, err = telegram.NewNotifier(cfg.TelegramConfig(), log)
	default:
		err = fmt.Errorf("unknown notifier type %q", cfg.Notifier.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s notifier: %w", cfg.Notifier.Type, err)
	}

	rps, burst := cfg.Notifier.RateLimit, cfg.Notifier.Burst
	if cfg.Notifier.PerAddressRateLimit > 0 {
		if rps <= 0 {
			rps = math.MaxFloat64
		}
		throttle := conversation.NewThrottle(notifier, rps, burst).(*conversation.Throttle)
		return throttle.WithPerAddress(cfg.Notifier.PerAddressRateLimit, burst), nil
	}
	return conversation.NewThrottle(notifier, rps, burst), nil
}

func (a *App) controllerConfig() conversation.ControllerConfig {
	return conversation.ControllerConfig{
		Store:      a.Store,
		Dispatcher: a.dispatcher,
		Metrics:    a.Metrics,
		Log:        a.Log,
	}
}

// Controller returns the current session, starting one if needed.
func (a *App) Controller() *conversation.Controller {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		a.current = conversation.StartSession(context.Background(), a.Source, a.controllerConfig())
	}
	return a.current
}

// ReloadDirectory starts a new session with a fresh directory snapshot.
// Dispatches of the previous session keep running against its snapshot;
// retired sessions are dropped once they have no dispatch in flight.
func (a *App) ReloadDirectory(ctx context.Context) *conversation.Directory {
	next := conversation.StartSession(ctx, a.Source, a.controllerConfig())
	a.mu.Lock()
	if a.current != nil {
		a.retired = append(a.retired, a.current)
	}
	a.current = next
	a.pruneRetired()
	a.mu.Unlock()
	return next.Directory()
}

// pruneRetired drops idle retired sessions. a.mu must be held.
func (a *App) pruneRetired() {
	busy := a.retired[:0]
	for _, ctrl := range a.retired {
		if !ctrl.Idle() {
			busy = append(busy, ctrl)
		}
	}
	clear(a.retired[len(busy):])
	a.retired = busy
}

// Wait blocks until the dispatches of every session have finished.
func (a *App) Wait() {
	a.mu.Lock()
	sessions := append([]*conversation.Controller(nil), a.retired...)
	if a.current != nil {
		sessions = append(sessions, a.current)
	}
	a.retired = nil
	a.mu.Unlock()
	for _, ctrl := range sessions {
		ctrl.Wait()
	}
}

// Close waits for in-flight dispatches and closes the store.
func (a *App) Close() error {
	a.Wait()
	return a.Store.Close()
}

// Serve runs the HTTP API and the directory refresh loop until ctx is
// cancelled or either fails.
func (a *App) Serve(ctx context.Context) error {
	a.ReloadDirectory(ctx)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return api.NewServer(a, a.Registry, a.Log).ListenAndServe(ctx, a.Config.API.ListenAddr)
	})
	if expr := a.Config.Directory.RefreshCron; expr != "" {
		eg.Go(func() error {
			return WatchDirectory(ctx, expr, a.ReloadDirectory, a.Log)
		})
	}
	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

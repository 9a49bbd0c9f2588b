// Package daemon runs docship continuously: periodic rebuilds, push webhooks,
// config reload, metrics serving, and deployment event publication.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/history"
	"git.home.luguber.info/inful/docship/internal/logfields"
	"git.home.luguber.info/inful/docship/internal/metrics"
	"git.home.luguber.info/inful/docship/internal/pipeline"
	"git.home.luguber.info/inful/docship/internal/workspace"
)

// TriggerKind records why a run was started.
type TriggerKind string

const (
	TriggerSchedule TriggerKind = "schedule"
	TriggerWebhook  TriggerKind = "webhook"
	TriggerStartup  TriggerKind = "startup"
)

// runPipeline builds and executes one pipeline run; replaceable in tests.
type runPipeline func(ctx context.Context, cfg *appcfg.Config) (*pipeline.Report, error)

// Daemon coordinates continuous documentation publishing.
type Daemon struct {
	mu         sync.RWMutex
	cfg        *appcfg.Config
	configPath string

	trigger chan TriggerKind

	scheduler *Scheduler
	watcher   *ConfigWatcher
	webhook   *WebhookServer
	events    *EventPublisher
	store     history.Store
	recorder  metrics.Recorder
	registry  *prometheus.Registry

	run runPipeline
}

// New constructs a daemon from the loaded configuration. configPath is
// watched for changes when non-empty.
func New(cfg *appcfg.Config, configPath string) (*Daemon, error) {
	d := &Daemon{
		cfg:        cfg,
		configPath: configPath,
		trigger:    make(chan TriggerKind, 1),
		recorder:   metrics.NoopRecorder{},
	}
	d.run = d.executePipeline

	if cfg.Daemon.MetricsListen != "" {
		d.registry = prometheus.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(d.registry)
	}

	if cfg.History.Path != "" {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		d.store = store
	}

	if cfg.Daemon.NATS != nil {
		events, err := NewEventPublisher(cfg.Daemon.NATS)
		if err != nil {
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		d.events = events
	}

	return d, nil
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *appcfg.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// ReloadConfig swaps in a new configuration. Listener addresses are fixed at
// startup; changing them requires a restart.
func (d *Daemon) ReloadConfig(_ context.Context, cfg *appcfg.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.Daemon.WebhookListen != d.cfg.Daemon.WebhookListen ||
		cfg.Daemon.MetricsListen != d.cfg.Daemon.MetricsListen {
		slog.Warn("Listener address changes require a daemon restart")
	}
	d.cfg = cfg
	slog.Info("Configuration reloaded")
	return nil
}

// Trigger requests a pipeline run. Requests arriving while a run is already
// pending are coalesced.
func (d *Daemon) Trigger(kind TriggerKind) {
	select {
	case d.trigger <- kind:
		slog.Debug("Run triggered", slog.String("trigger", string(kind)))
	default:
		slog.Debug("Run already pending, trigger coalesced", slog.String("trigger", string(kind)))
	}
}

// Run starts all daemon components and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	var err error
	d.scheduler, err = NewScheduler(d)
	if err != nil {
		return err
	}
	if err := d.scheduler.SchedulePeriodic(appcfg.Duration(cfg.Daemon.Interval)); err != nil {
		return err
	}
	d.scheduler.Start()

	if d.configPath != "" {
		d.watcher, err = NewConfigWatcher(d.configPath, d)
		if err != nil {
			return err
		}
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}

	if cfg.Daemon.WebhookListen != "" {
		d.webhook = NewWebhookServer(cfg.Daemon.WebhookListen, cfg.Daemon.WebhookSecret, d)
		go d.webhook.ListenAndServe()
	}

	var metricsSrv *http.Server
	if cfg.Daemon.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
		metricsSrv = &http.Server{Addr: cfg.Daemon.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		slog.Info("Metrics listening", slog.String("addr", cfg.Daemon.MetricsListen))
	}

	// Build once at startup so a fresh daemon publishes without waiting a
	// full interval.
	d.Trigger(TriggerStartup)

	d.runLoop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.shutdown(shutdownCtx, metricsSrv)
	return ctx.Err()
}

// runLoop consumes triggers and executes pipeline runs one at a time.
func (d *Daemon) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-d.trigger:
			d.runOnce(ctx, kind)
		}
	}
}

// runOnce executes a single pipeline run and publishes its outcome.
func (d *Daemon) runOnce(ctx context.Context, kind TriggerKind) {
	cfg := d.Config()
	slog.Info("Starting pipeline run", slog.String("trigger", string(kind)))

	report, err := d.run(ctx, cfg)
	if err != nil {
		slog.Error("Pipeline run failed", logfields.Error(err))
	}
	if report == nil {
		return
	}
	if d.events != nil {
		if perr := d.events.PublishRun(ctx, report); perr != nil {
			slog.Warn("Failed to publish deployment event", logfields.Error(perr))
		}
	}
}

// executePipeline is the production runPipeline: a full docship run with the
// daemon's shared store and recorder, using a persistent workspace so
// incremental checkouts survive across runs.
func (d *Daemon) executePipeline(ctx context.Context, cfg *appcfg.Config) (*pipeline.Report, error) {
	ws := workspace.NewPersistentManager(cfg.Daemon.DataDir, "working")
	p := pipeline.New(cfg).
		WithWorkspace(ws).
		WithRecorder(d.recorder).
		WithHistory(d.store)
	return p.Run(ctx)
}

// shutdown stops components in reverse start order.
func (d *Daemon) shutdown(ctx context.Context, metricsSrv *http.Server) {
	slog.Info("Daemon shutting down")
	if d.webhook != nil {
		if err := d.webhook.Shutdown(ctx); err != nil {
			slog.Warn("Webhook server shutdown", logfields.Error(err))
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown", logfields.Error(err))
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			slog.Warn("Scheduler shutdown", logfields.Error(err))
		}
	}
	if d.events != nil {
		d.events.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("History store close", logfields.Error(err))
		}
	}
}

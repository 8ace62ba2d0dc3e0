package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"ContentDigest/internal/config"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/infrastructure/llm"
	"ContentDigest/internal/infrastructure/parser"
	"ContentDigest/internal/infrastructure/scheduler"
	"ContentDigest/internal/infrastructure/social"
	"ContentDigest/internal/infrastructure/storage"
	"ContentDigest/internal/infrastructure/telegram"
	"ContentDigest/internal/logging"
	"ContentDigest/internal/scanner"
	"ContentDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	scheduler *scheduler.CronScheduler
	pipeline  *usecase.PipelineTask
	sweep     *usecase.CacheSweepTask
}

// Option customizes the wiring, mostly for tests.
type Option func(*options)

type options struct {
	httpClient *http.Client
	botFactory telegram.BotFactory
}

// WithHTTPClient replaces the client used by every outbound adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithBotFactory replaces the Telegram bot constructor.
func WithBotFactory(f telegram.BotFactory) Option {
	return func(o *options) { o.botFactory = f }
}

// New opens storage and builds every adapter. Optional adapters that are not
// configured are skipped with a log line; only storage failures are fatal.
func New(cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := scanner.NewRegistry(
		parser.NewSocialCollector(o.httpClient, cfg.Sources.Social.Endpoint, cfg.Sources.Social.Token),
		parser.NewChannelCollector(o.httpClient, cfg.Sources.Channel.Endpoint),
		parser.NewFeedCollector(o.httpClient, cfg.Sources.Feed.ExtractContent, baseLogger.With("component", "collector.feed")),
	)

	deps := usecase.PipelineDeps{
		Name:              cfg.Pipeline.Name,
		EstimatedDuration: cfg.Pipeline.EstimatedDuration,
		Config:            cfg.RunConfig(),
		Sources:           buildSources(cfg.Sources, registry, store),
		Repository:        store.Digests(),
		NotifyTimeout:     cfg.Pipeline.NotifyTimeout,
		Logger:            baseLogger.With("component", "pipeline"),
	}

	if synth, err := llm.NewSynthesizer(cfg.Synthesis, o.httpClient, baseLogger); err != nil {
		baseLogger.Warn("synthesizer disabled", "error", err)
	} else {
		deps.Synthesizer = synth
	}

	if cfg.Distribution.Social.Endpoint != "" {
		pub, err := social.NewPublisher(cfg.Distribution.Social, o.httpClient)
		if err != nil {
			baseLogger.Warn("social distribution disabled", "error", err)
		} else {
			deps.Distributors = append(deps.Distributors, pub)
		}
	}
	if cfg.Distribution.ChatOps.Configured() {
		chat, err := telegram.NewDistributor(cfg.Distribution.ChatOps, o.httpClient, o.botFactory)
		if err != nil {
			baseLogger.Warn("chat-ops distribution disabled", "error", err)
		} else {
			deps.Distributors = append(deps.Distributors, chat)
		}
	}
	if cfg.Notifications.Telegram.Configured() {
		n, err := telegram.NewNotifier(cfg.Notifications.Telegram, o.httpClient, o.botFactory)
		if err != nil {
			baseLogger.Warn("notifications disabled", "error", err)
		} else {
			deps.Notifier = n
		}
	}

	taskLogger := baseLogger.With("component", "task")
	pipeline := usecase.NewPipelineTask(config.PipelineTaskName, deps, store.Settings(), taskLogger)
	sweep := usecase.NewCacheSweepTask(config.CacheSweepTaskName, store, cfg.Cache.Retention, taskLogger)

	sched := scheduler.NewCronScheduler(
		scheduler.WithHistorySize(cfg.Scheduler.HistorySize),
		scheduler.WithLogger(baseLogger.With("component", "scheduler")),
	)
	if err := usecase.RegisterTasks(sched, cfg.Scheduler.Tasks, baseLogger, pipeline, sweep); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		scheduler: sched,
		pipeline:  pipeline,
		sweep:     sweep,
	}, nil
}

func buildSources(cfg config.SourcesConfig, registry *scanner.Registry, store *storage.Store) map[domain.SourceType]usecase.Source {
	sources := make(map[domain.SourceType]usecase.Source, len(domain.SourceTypes))
	for _, t := range registry.Types() {
		collector, err := registry.Resolve(t)
		if err != nil {
			continue
		}
		sc := cfg.ByType(t)
		sources[t] = usecase.Source{
			Collector: collector,
			Cache:     store.Cache(t, sc.CacheTTL, sc.KeyTTL),
			Keys:      sc.Keys,
			MaxItems:  sc.MaxItems,
		}
	}
	return sources
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("content digest running", "tasks", a.scheduler.Tasks(), "timezone", a.cfg.Scheduler.Timezone)
	for _, name := range a.scheduler.Tasks() {
		if next, ok := a.scheduler.NextRun(name); ok {
			a.logger.Info("next run", "task", name, "at", next)
		}
	}

	<-ctx.Done()
	err := a.scheduler.Stop(a.cfg.Scheduler.StopTimeout)
	for _, name := range []string{config.PipelineTaskName, config.CacheSweepTaskName} {
		st := a.scheduler.TaskStats(name)
		a.logger.Info("task stats", "task", name, "runs", st.Total, "success_rate", st.SuccessRate, "avg_duration", st.AverageDuration)
	}
	return err
}

// RunOnce executes the pipeline immediately, outside of the scheduler.
func (a *Application) RunOnce(ctx context.Context) (usecase.Outcome, error) {
	return a.pipeline.Run(ctx)
}

// Sweep removes cached content older than the configured retention.
func (a *Application) Sweep(ctx context.Context) error {
	return a.sweep.Execute(ctx)
}

// Digests exposes the digest repository to the CLI.
func (a *Application) Digests() *storage.DigestRepository {
	return a.store.Digests()
}

// Settings exposes the runtime settings store to the CLI.
func (a *Application) Settings() *storage.SettingsStore {
	return a.store.Settings()
}

// RunConfig reports the effective configuration the next run would use.
func (a *Application) RunConfig(ctx context.Context) domain.PipelineRunConfig {
	return a.pipeline.RunConfig(ctx)
}

// Close releases storage.
func (a *Application) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return errors.Join(a.scheduler.Stop(a.cfg.Scheduler.StopTimeout), a.store.Close())
}

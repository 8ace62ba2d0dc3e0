package ports

import (
	"context"
	"time"

	"ContentDigest/internal/domain"
)

// Collector pulls fresh items for one source key from the origin system.
type Collector interface {
	SourceType() domain.SourceType
	Fetch(ctx context.Context, key string, limits domain.FetchLimits) ([]domain.ContentItem, error)
}

// CacheGateway answers freshness questions and serves cached items for one source type.
type CacheGateway interface {
	IsFresh(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]domain.ContentItem, error)
	Write(ctx context.Context, key string, items []domain.ContentItem) error
}

// Synthesizer turns normalized content into an analysis result.
type Synthesizer interface {
	Analyze(ctx context.Context, input domain.SynthesisInput) (domain.AnalysisResult, error)
}

// DigestRepository persists pipeline results.
type DigestRepository interface {
	Insert(ctx context.Context, digest domain.Digest) (string, error)
	Update(ctx context.Context, id string, update domain.DigestUpdate) error
	Get(ctx context.Context, id string) (domain.Digest, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Digest, error)
}

// Distributor publishes a digest to one channel. Failures are reported in the result.
type Distributor interface {
	Channel() domain.Channel
	Send(ctx context.Context, view domain.DigestView) domain.DistributionResult
}

// Notifier streams operational notices to Telegram or other channels.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// Task is anything the scheduler can run on a cadence.
type Task interface {
	Name() string
	EstimatedDuration() time.Duration
	Execute(ctx context.Context) error
}

// SettingsStore keeps runtime configuration overrides.
type SettingsStore interface {
	Get(ctx context.Context, key string) (domain.Setting, bool, error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]domain.Setting, error)
}

// CacheSweeper removes cached content older than a retention window.
type CacheSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// RunConfigOverlay layers runtime overrides over the static run configuration.
type RunConfigOverlay interface {
	ApplyRunOverrides(ctx context.Context, base domain.PipelineRunConfig) (domain.PipelineRunConfig, error)
}

// Scheduler installs cron triggers for named tasks.
type Scheduler interface {
	ScheduleTask(cfg domain.ScheduleConfig, task Task) error
	UnscheduleTask(name string)
}

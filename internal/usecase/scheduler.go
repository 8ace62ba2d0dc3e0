package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// PipelineTask adapts the pipeline to the scheduler. Each execution snapshots the
// run configuration and builds a fresh Pipeline, so runs share no mutable state.
type PipelineTask struct {
	name     string
	template PipelineDeps
	overlay  ports.RunConfigOverlay
	logger   *slog.Logger

	mu   sync.Mutex
	last *Outcome
}

var _ ports.Task = (*PipelineTask)(nil)

// NewPipelineTask returns a task named name. overlay may be nil.
func NewPipelineTask(name string, template PipelineDeps, overlay ports.RunConfigOverlay, logger *slog.Logger) *PipelineTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineTask{
		name:     name,
		template: template,
		overlay:  overlay,
		logger:   logger.With("task", name),
	}
}

func (t *PipelineTask) Name() string { return t.name }

func (t *PipelineTask) EstimatedDuration() time.Duration { return t.template.EstimatedDuration }

// Execute satisfies ports.Task.
func (t *PipelineTask) Execute(ctx context.Context) error {
	_, err := t.Run(ctx)
	return err
}

// Run performs one pipeline run with the current effective configuration.
func (t *PipelineTask) Run(ctx context.Context) (Outcome, error) {
	deps := t.template
	deps.Config = t.RunConfig(ctx)

	out, err := NewPipeline(deps).Run(ctx)

	t.mu.Lock()
	t.last = &out
	t.mu.Unlock()
	return out, err
}

// RunConfig resolves the static configuration plus runtime overrides.
// Unreadable overrides are logged and the static configuration is used.
func (t *PipelineTask) RunConfig(ctx context.Context) domain.PipelineRunConfig {
	base := t.template.Config.Clone()
	if t.overlay == nil {
		return base
	}
	rc, err := t.overlay.ApplyRunOverrides(ctx, base)
	if err != nil {
		t.logger.Warn("runtime overrides ignored", "error", err)
		return base
	}
	return rc
}

// LastOutcome returns the outcome of the most recent run.
func (t *PipelineTask) LastOutcome() (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Outcome{}, false
	}
	return *t.last, true
}

// CacheSweepTask removes cached content past its retention window.
type CacheSweepTask struct {
	name      string
	sweeper   ports.CacheSweeper
	retention time.Duration
	logger    *slog.Logger
}

var _ ports.Task = (*CacheSweepTask)(nil)

func NewCacheSweepTask(name string, sweeper ports.CacheSweeper, retention time.Duration, logger *slog.Logger) *CacheSweepTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheSweepTask{name: name, sweeper: sweeper, retention: retention, logger: logger.With("task", name)}
}

func (t *CacheSweepTask) Name() string { return t.name }

func (t *CacheSweepTask) EstimatedDuration() time.Duration { return time.Minute }

func (t *CacheSweepTask) Execute(ctx context.Context) error {
	removed, err := t.sweeper.Sweep(ctx, t.retention)
	if err != nil {
		return fmt.Errorf("sweep cache: %w", err)
	}
	t.logger.Info("cache swept", "removed", removed, "retention", t.retention.String())
	return nil
}

// RegisterTasks installs every schedule that has a matching task.
// Schedules without a task and tasks without a schedule are logged and skipped.
func RegisterTasks(s ports.Scheduler, schedules []domain.ScheduleConfig, logger *slog.Logger, tasks ...ports.Task) error {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]ports.Task, len(tasks))
	for _, task := range tasks {
		byName[task.Name()] = task
	}

	var errs []error
	scheduled := map[string]bool{}
	for _, cfg := range schedules {
		task, ok := byName[cfg.Name]
		if !ok {
			logger.Warn("schedule has no matching task", "task", cfg.Name)
			continue
		}
		if err := s.ScheduleTask(cfg, task); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", cfg.Name, err))
			continue
		}
		scheduled[cfg.Name] = cfg.Enabled
	}

	for name := range byName {
		if !scheduled[name] {
			logger.Warn("task has no active schedule", "task", name)
		}
	}
	return errors.Join(errs...)
}

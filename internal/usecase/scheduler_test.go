package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/logging"
	"ContentDigest/internal/ports"
)

type fakeOverlay struct {
	apply func(domain.PipelineRunConfig) (domain.PipelineRunConfig, error)
}

func (o fakeOverlay) ApplyRunOverrides(_ context.Context, base domain.PipelineRunConfig) (domain.PipelineRunConfig, error) {
	return o.apply(base)
}

type fakeSweeper struct {
	retention time.Duration
	removed   int64
	err       error
}

func (s *fakeSweeper) Sweep(_ context.Context, retention time.Duration) (int64, error) {
	s.retention = retention
	return s.removed, s.err
}

type recordingScheduler struct {
	scheduled map[string]ports.Task
	fail      map[string]error
}

func (s *recordingScheduler) ScheduleTask(cfg domain.ScheduleConfig, task ports.Task) error {
	if err := s.fail[cfg.Name]; err != nil {
		return err
	}
	if s.scheduled == nil {
		s.scheduled = map[string]ports.Task{}
	}
	s.scheduled[cfg.Name] = task
	return nil
}

func (s *recordingScheduler) UnscheduleTask(name string) { delete(s.scheduled, name) }

func TestPipelineTaskAppliesOverridesPerRun(t *testing.T) {
	h := newHarness()
	quality := 0.99
	overlay := fakeOverlay{apply: func(base domain.PipelineRunConfig) (domain.PipelineRunConfig, error) {
		base.MinQuality = quality
		return base, nil
	}}
	task := NewPipelineTask("content-pipeline", h.deps, overlay, logging.Discard())
	assert.Equal(t, "content-pipeline", task.Name())

	out, err := task.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoContent, out.Status, "override raised the quality floor above every item")

	quality = 0.1
	require.NoError(t, task.Execute(context.Background()))
	last, ok := task.LastOutcome()
	require.True(t, ok)
	assert.Equal(t, OutcomeCompleted, last.Status)
	assert.Equal(t, 0.5, h.deps.Config.MinQuality, "template config is untouched")
}

func TestPipelineTaskFallsBackOnOverlayError(t *testing.T) {
	h := newHarness()
	overlay := fakeOverlay{apply: func(domain.PipelineRunConfig) (domain.PipelineRunConfig, error) {
		return domain.PipelineRunConfig{}, errors.New("bad setting")
	}}
	task := NewPipelineTask("content-pipeline", h.deps, overlay, logging.Discard())

	rc := task.RunConfig(context.Background())
	assert.Equal(t, 0.5, rc.MinQuality)
	assert.True(t, rc.Enabled(domain.SourceFeed))
}

func TestPipelineTaskPropagatesFatalErrors(t *testing.T) {
	h := newHarness()
	h.synth.err = errors.New("quota")
	task := NewPipelineTask("content-pipeline", h.deps, nil, logging.Discard())

	err := task.Execute(context.Background())
	assert.ErrorIs(t, err, ErrSynthesis)
}

func TestCacheSweepTask(t *testing.T) {
	sweeper := &fakeSweeper{removed: 7}
	task := NewCacheSweepTask("cache-sweep", sweeper, 72*time.Hour, logging.Discard())

	require.NoError(t, task.Execute(context.Background()))
	assert.Equal(t, 72*time.Hour, sweeper.retention)

	sweeper.err = errors.New("locked")
	assert.Error(t, task.Execute(context.Background()))
}

func TestRegisterTasks(t *testing.T) {
	sched := &recordingScheduler{fail: map[string]error{"broken": errors.New("bad cron")}}
	pipeline := NewPipelineTask("content-pipeline", newHarness().deps, nil, logging.Discard())
	sweep := NewCacheSweepTask("cache-sweep", &fakeSweeper{}, time.Hour, logging.Discard())
	broken := NewCacheSweepTask("broken", &fakeSweeper{}, time.Hour, logging.Discard())

	err := RegisterTasks(sched, []domain.ScheduleConfig{
		{Name: "content-pipeline", CronPattern: "@hourly", Enabled: true},
		{Name: "cache-sweep", CronPattern: "@daily", Enabled: true},
		{Name: "orphan", CronPattern: "@daily", Enabled: true},
		{Name: "broken", CronPattern: "nope", Enabled: true},
	}, logging.Discard(), pipeline, sweep, broken)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, sched.scheduled, 2)
	assert.Same(t, pipeline, sched.scheduled["content-pipeline"])
	assert.NotContains(t, sched.scheduled, "orphan")
}

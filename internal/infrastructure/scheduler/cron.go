package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
	"ContentDigest/pkg/logger"
)

const defaultHistorySize = 200

var (
	ErrAlreadyStarted  = errors.New("scheduler: already started")
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")
	ErrNilTask         = errors.New("scheduler: task is nil")
)

var (
	validate   = validator.New()
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// CronScheduler drives named tasks on cron triggers, guards against
// overlapping runs, retries failures and keeps a bounded run history.
type CronScheduler struct {
	mu          sync.Mutex
	cron        *cron.Cron
	logger      *slog.Logger
	now         func() time.Time
	historySize int

	entries map[string]*entry
	active  map[string]map[string]*run
	timers  map[string]*time.Timer
	history []domain.TaskExecution

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
	done    chan struct{}
	drained chan struct{}
}

type entry struct {
	id     cron.EntryID
	config domain.ScheduleConfig
	task   ports.Task
}

// run ties one execution to the task and settings it was started with.
type run struct {
	exec   *domain.TaskExecution
	task   ports.Task
	config domain.ScheduleConfig
}

// Option customizes a CronScheduler.
type Option func(*CronScheduler)

// WithHistorySize caps the number of retained executions.
func WithHistorySize(n int) Option {
	return func(s *CronScheduler) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *CronScheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for execution timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *CronScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCronScheduler builds an idle scheduler; call Start to begin firing triggers.
func NewCronScheduler(opts ...Option) *CronScheduler {
	s := &CronScheduler{
		logger:      slog.Default(),
		now:         time.Now,
		historySize: defaultHistorySize,
		entries:     map[string]*entry{},
		active:      map[string]map[string]*run{},
		timers:      map[string]*time.Timer{},
		done:        make(chan struct{}),
		drained:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cronLog := logger.Cron(s.logger)
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
	)
	return s
}

// ScheduleTask registers or replaces the trigger for cfg.Name.
// A disabled config installs nothing and removes any previous trigger.
func (s *CronScheduler) ScheduleTask(cfg domain.ScheduleConfig, task ports.Task) error {
	if task == nil {
		return ErrNilTask
	}
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}

	if !cfg.Enabled {
		s.mu.Lock()
		s.removeEntryLocked(cfg.Name)
		s.mu.Unlock()
		s.logger.Info("task disabled, trigger not installed", "task", cfg.Name)
		return nil
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, cfg.Name, err)
	}
	schedule, err := cronParser.Parse(cronSpec(cfg))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, cfg.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeEntryLocked(cfg.Name)

	name := cfg.Name
	id := s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(name) }))
	s.entries[name] = &entry{id: id, config: cfg, task: task}
	s.logger.Info("task scheduled",
		"task", name,
		"cron", cfg.CronPattern,
		"timezone", cfg.Timezone,
		"max_concurrent", cfg.ConcurrencyLimit(),
		"retries", cfg.RetryAttempts,
	)
	return nil
}

// UnscheduleTask removes the trigger for name. Pending retries of that task
// are cancelled. Unknown names are ignored.
func (s *CronScheduler) UnscheduleTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removeEntryLocked(name) {
		s.logger.Info("task unscheduled", "task", name)
	}
	for _, r := range s.active[name] {
		s.cancelRetryLocked(r, "task unscheduled")
	}
}

// Start begins firing triggers. The scheduler stops itself when ctx is done.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.Tasks()))

	go func() {
		select {
		case <-ctx.Done():
			if err := s.Stop(0); err != nil {
				s.logger.Warn("scheduler stop", "error", err)
			}
		case <-s.done:
		}
	}()
	return nil
}

// Stop halts triggers, cancels pending retries and waits for in-flight runs.
// Every caller waits on the same drain, each up to its own timeout; a
// non-positive timeout waits indefinitely.
func (s *CronScheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	first := !s.stopped
	if first {
		s.stopped = true
		close(s.done)
		for _, runs := range s.active {
			for _, r := range runs {
				s.cancelRetryLocked(r, "scheduler stopped")
			}
		}
	}
	s.mu.Unlock()

	if first {
		s.cancel()
		cronStopped := s.cron.Stop()
		go func() {
			defer close(s.drained)
			<-cronStopped.Done()
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
		}()
	}

	if timeout <= 0 {
		<-s.drained
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.drained:
		return nil
	case <-timer.C:
		return fmt.Errorf("scheduler: stop timeout after %s", timeout)
	}
}

// RunNow fires one guarded tick for name in the caller's goroutine.
// It reports false when the task is unknown or the concurrency guard skipped it.
func (s *CronScheduler) RunNow(name string) (domain.TaskExecution, bool) {
	return s.fire(name)
}

// Tasks returns the names of installed triggers in lexical order.
func (s *CronScheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun reports the next trigger time for name, once the scheduler is started.
func (s *CronScheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(e.id).Next
	return next, !next.IsZero()
}

// Running returns executions of name that are running or waiting for a retry.
func (s *CronScheduler) Running(name string) []domain.TaskExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TaskExecution, 0, len(s.active[name]))
	for _, r := range s.active[name] {
		out = append(out, *r.exec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// History returns finished executions, most recent first. An empty name returns all tasks.
func (s *CronScheduler) History(name string) []domain.TaskExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TaskExecution, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		if name == "" || s.history[i].TaskName == name {
			out = append(out, s.history[i])
		}
	}
	return out
}

// TaskStats aggregates success rate and mean duration over the history.
func (s *CronScheduler) TaskStats(name string) domain.TaskStats {
	stats := domain.TaskStats{TaskName: name}
	var (
		total    time.Duration
		measured int
	)
	for _, exec := range s.History(name) {
		stats.Total++
		switch exec.Status {
		case domain.ExecutionCompleted:
			stats.Completed++
		case domain.ExecutionFailed:
			stats.Failed++
		}
		if d, ok := exec.Duration(); ok {
			total += d
			measured++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total)
	}
	if measured > 0 {
		stats.AverageDuration = total / time.Duration(measured)
	}
	return stats
}

func (s *CronScheduler) fire(name string) (domain.TaskExecution, bool) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok || s.stopped {
		s.mu.Unlock()
		return domain.TaskExecution{}, false
	}
	if n := len(s.active[name]); n >= e.config.ConcurrencyLimit() {
		s.mu.Unlock()
		s.logger.Debug("tick skipped, task still active", "task", name, "active", n)
		return domain.TaskExecution{}, false
	}

	r := &run{
		exec: &domain.TaskExecution{
			TaskName:    name,
			ExecutionID: uuid.NewString(),
			StartTime:   s.now(),
			Status:      domain.ExecutionRunning,
		},
		task:   e.task,
		config: e.config,
	}
	if s.active[name] == nil {
		s.active[name] = map[string]*run{}
	}
	s.active[name][r.exec.ExecutionID] = r
	s.wg.Add(1)
	s.mu.Unlock()

	return s.invoke(r), true
}

func (s *CronScheduler) invoke(r *run) domain.TaskExecution {
	defer s.wg.Done()

	s.logger.Info("task started",
		"task", r.exec.TaskName,
		"execution_id", r.exec.ExecutionID,
		"attempt", r.exec.RetryCount+1,
		"estimated", r.task.EstimatedDuration().String(),
	)

	err := s.execute(r.task)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.finishLocked(r, domain.ExecutionCompleted, "")
		s.logger.Info("task completed", "task", r.exec.TaskName, "execution_id", r.exec.ExecutionID)
		return *r.exec
	}

	r.exec.Error = err.Error()
	if r.exec.RetryCount < r.config.RetryAttempts && !s.stopped {
		r.exec.Status = domain.ExecutionRetrying
		r.exec.RetryCount++
		id := r.exec.ExecutionID
		s.timers[id] = time.AfterFunc(r.config.RetryDelay, func() { s.retry(r) })
		s.logger.Warn("task failed, retry scheduled",
			"task", r.exec.TaskName,
			"execution_id", id,
			"retry", r.exec.RetryCount,
			"max_retries", r.config.RetryAttempts,
			"delay", r.config.RetryDelay.String(),
			"error", err,
		)
		return *r.exec
	}

	s.finishLocked(r, domain.ExecutionFailed, err.Error())
	s.logger.Error("task failed",
		"task", r.exec.TaskName,
		"execution_id", r.exec.ExecutionID,
		"retries", r.exec.RetryCount,
		"error", err,
	)
	return *r.exec
}

func (s *CronScheduler) retry(r *run) {
	s.mu.Lock()
	id := r.exec.ExecutionID
	delete(s.timers, id)
	if s.stopped || r.exec.Status != domain.ExecutionRetrying {
		s.mu.Unlock()
		return
	}
	r.exec.Status = domain.ExecutionRunning
	s.wg.Add(1)
	s.mu.Unlock()

	s.invoke(r)
}

// execute shields the scheduler from task panics.
func (s *CronScheduler) execute(task ports.Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task.Execute(s.ctx)
}

func (s *CronScheduler) removeEntryLocked(name string) bool {
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(e.id)
	delete(s.entries, name)
	return true
}

func (s *CronScheduler) cancelRetryLocked(r *run, reason string) {
	if r.exec.Status != domain.ExecutionRetrying {
		return
	}
	id := r.exec.ExecutionID
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	s.finishLocked(r, domain.ExecutionFailed, reason)
	s.logger.Info("pending retry cancelled", "task", r.exec.TaskName, "execution_id", id, "reason", reason)
}

func (s *CronScheduler) finishLocked(r *run, status domain.ExecutionStatus, errMsg string) {
	end := s.now()
	r.exec.EndTime = &end
	r.exec.Status = status
	r.exec.Error = errMsg

	name := r.exec.TaskName
	delete(s.active[name], r.exec.ExecutionID)
	if len(s.active[name]) == 0 {
		delete(s.active, name)
	}

	s.history = append(s.history, *r.exec)
	if len(s.history) > s.historySize {
		s.history = append([]domain.TaskExecution(nil), s.history[len(s.history)-s.historySize:]...)
	}
}

func cronSpec(cfg domain.ScheduleConfig) string {
	if cfg.Timezone == "" {
		return cfg.CronPattern
	}
	return "CRON_TZ=" + cfg.Timezone + " " + cfg.CronPattern
}

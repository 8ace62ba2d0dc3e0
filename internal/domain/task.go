package domain

import "time"

// ExecutionStatus enumerates the lifecycle of a task execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionRetrying  ExecutionStatus = "retrying"
)

// TaskExecution is one scheduler-invoked attempt, retries included.
type TaskExecution struct {
	TaskName    string
	ExecutionID string
	StartTime   time.Time
	EndTime     *time.Time
	Status      ExecutionStatus
	RetryCount  int
	Error       string
}

// Duration returns the wall time of a finished execution.
func (e TaskExecution) Duration() (time.Duration, bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return e.EndTime.Sub(e.StartTime), true
}

// ScheduleConfig owns the cadence of one named task.
type ScheduleConfig struct {
	Name              string        `yaml:"name" validate:"required"`
	CronPattern       string        `yaml:"cron" validate:"required"`
	Enabled           bool          `yaml:"enabled"`
	Timezone          string        `yaml:"timezone"`
	MaxConcurrentRuns int           `yaml:"maxConcurrentRuns" validate:"gte=0"`
	RetryAttempts     int           `yaml:"retryAttempts" validate:"gte=0"`
	RetryDelay        time.Duration `yaml:"retryDelay" validate:"gte=0"`
}

// ConcurrencyLimit normalizes MaxConcurrentRuns; anything below one means one.
func (c ScheduleConfig) ConcurrencyLimit() int {
	if c.MaxConcurrentRuns < 1 {
		return 1
	}
	return c.MaxConcurrentRuns
}

// TaskStats aggregates execution history.
type TaskStats struct {
	TaskName        string
	Total           int
	Completed       int
	Failed          int
	SuccessRate     float64
	AverageDuration time.Duration
}

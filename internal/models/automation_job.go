package models

import "time"

// JobType determines when a job runs relative to the scheduler tick
type JobType string

const (
	// JobContinuous runs on every tick
	JobContinuous JobType = "continuous"
	// JobPeriodic runs when the tick is a multiple of the interval
	JobPeriodic JobType = "periodic"
	// JobConditional runs on the interval and decides internally whether to act
	JobConditional JobType = "conditional"
)

// AutomationJob is a job registered with the scheduler.
// Jobs are never deleted; they are only toggled active or inactive.
type AutomationJob struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           JobType    `json:"type"`
	Interval       int64      `json:"interval"` // in ticks
	Description    string     `json:"description,omitempty"`
	IsActive       bool       `json:"isActive"`
	LastExecuted   *time.Time `json:"lastExecuted,omitempty"`
	LastTick       int64      `json:"lastTick"`
	ExecutionCount int64      `json:"executionCount"`
	FailureCount   int64      `json:"failureCount"`
	LastError      string     `json:"lastError,omitempty"`
}

// ShouldRun reports whether the job is due on the given tick
func (j *AutomationJob) ShouldRun(tick int64) bool {
	if !j.IsActive {
		return false
	}
	switch j.Type {
	case JobContinuous:
		return true
	case JobPeriodic, JobConditional:
		if j.Interval <= 0 {
			return true
		}
		return tick%j.Interval == 0
	default:
		return false
	}
}

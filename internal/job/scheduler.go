// Package job runs automation jobs on a fixed tick and triggers the analysis
// recompute pass after every tick.
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/observability"
)

// DefaultTickInterval is the wall-clock time between two ticks
const DefaultTickInterval = 15 * time.Second

// Body is the work done by a job when it is due
type Body func(ctx context.Context) error

// Recomputer recomputes analyses for every active token
type Recomputer interface {
	AnalyzeAll(ctx context.Context) error
}

// JobStore persists job state between restarts
type JobStore interface {
	SaveJob(ctx context.Context, job *models.AutomationJob) error
}

type registeredJob struct {
	job  models.AutomationJob
	body Body
}

// SchedulerConfig holds configuration for a Scheduler
type SchedulerConfig struct {
	Interval   time.Duration
	Recomputer Recomputer // optional
	Store      JobStore   // optional
	Clock      func() time.Time
}

// Scheduler owns the registered jobs and the tick counter
type Scheduler struct {
	interval   time.Duration
	recomputer Recomputer
	store      JobStore
	now        func() time.Time

	mu    sync.RWMutex
	jobs  []*registeredJob
	index map[string]*registeredJob
	tick  int64

	tickMu  sync.Mutex // serializes ticks
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// JobResult describes one job execution within a tick
type JobResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// TickResult describes one completed tick
type TickResult struct {
	Tick           int64       `json:"tick"`
	Jobs           []JobResult `json:"jobs"`
	RecomputeError string      `json:"recomputeError,omitempty"`
}

// Status is a snapshot of the scheduler
type Status struct {
	Running  bool                   `json:"running"`
	Tick     int64                  `json:"tick"`
	Interval string                 `json:"interval"`
	Jobs     []models.AutomationJob `json:"jobs"`
}

// NewScheduler creates a scheduler with no jobs
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = &SchedulerConfig{}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Scheduler{
		interval:   interval,
		recomputer: cfg.Recomputer,
		store:      cfg.Store,
		now:        clock,
		index:      make(map[string]*registeredJob),
	}
}

// Register adds a job and returns its id. A uuid is assigned when job.ID is empty.
func (s *Scheduler) Register(job models.AutomationJob, body Body) (string, error) {
	if body == nil {
		return "", fmt.Errorf("job %q has no body", job.Name)
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[job.ID]; exists {
		return "", fmt.Errorf("job %s is already registered", job.ID)
	}

	rj := &registeredJob{job: job, body: body}
	s.jobs = append(s.jobs, rj)
	s.index[job.ID] = rj
	return job.ID, nil
}

// Restore copies persisted counters onto registered jobs with the same id.
// Saved jobs without a registered counterpart are ignored.
func (s *Scheduler) Restore(saved []models.AutomationJob) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, j := range saved {
		rj, ok := s.index[j.ID]
		if !ok {
			continue
		}
		rj.job.IsActive = j.IsActive
		rj.job.LastExecuted = j.LastExecuted
		rj.job.LastTick = j.LastTick
		rj.job.ExecutionCount = j.ExecutionCount
		rj.job.FailureCount = j.FailureCount
		rj.job.LastError = j.LastError
		restored++
	}
	return restored
}

// SetActive toggles a job. Jobs are never removed.
func (s *Scheduler) SetActive(id string, active bool) error {
	s.mu.Lock()
	rj, ok := s.index[id]
	if ok {
		rj.job.IsActive = active
	}
	s.mu.Unlock()

	if !ok {
		return apperrors.NewNotFoundError("job", id)
	}
	return nil
}

// Job returns a copy of the job with the given id
func (s *Scheduler) Job(id string) (models.AutomationJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rj, ok := s.index[id]
	if !ok {
		return models.AutomationJob{}, false
	}
	return rj.job, true
}

// Jobs returns copies of all jobs in registration order
func (s *Scheduler) Jobs() []models.AutomationJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AutomationJob, len(s.jobs))
	for i, rj := range s.jobs {
		out[i] = rj.job
	}
	return out
}

// Tick runs every job due on the current tick, then the recompute pass, then
// advances the counter. The first tick is tick 0.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	tick := s.tick
	s.tick++
	due := make([]*registeredJob, 0, len(s.jobs))
	for _, rj := range s.jobs {
		if rj.job.ShouldRun(tick) {
			due = append(due, rj)
		}
	}
	s.mu.Unlock()

	result := TickResult{Tick: tick, Jobs: make([]JobResult, 0, len(due))}
	for _, rj := range due {
		if ctx.Err() != nil {
			break
		}
		result.Jobs = append(result.Jobs, s.execute(ctx, rj, tick))
	}

	if s.recomputer != nil && ctx.Err() == nil {
		if err := s.recomputer.AnalyzeAll(ctx); err != nil {
			result.RecomputeError = err.Error()
			logging.FromContext(ctx).WithError(err).WithField("tick", tick).Warn("Recompute pass finished with errors")
		}
	}

	observability.UpdateSchedulerTick(tick)
	return result
}

// execute runs one job body, recovering panics so the remaining jobs still run
func (s *Scheduler) execute(ctx context.Context, rj *registeredJob, tick int64) (res JobResult) {
	start := s.now()

	s.mu.Lock()
	executed := start
	rj.job.LastExecuted = &executed
	rj.job.LastTick = tick
	rj.job.ExecutionCount++
	res.ID = rj.job.ID
	res.Name = rj.job.Name
	s.mu.Unlock()

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"job":  res.Name,
		"tick": tick,
	})

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
				observability.RecordJobPanic(res.Name)
				logger.WithField("stack", string(debug.Stack())).Error("Job panicked")
			}
		}()
		err = rj.body(logging.WithLogger(ctx, logger))
	}()

	res.Duration = s.now().Sub(start)
	observability.RecordJobExecution(res.Name, err)

	s.mu.Lock()
	if err != nil {
		rj.job.FailureCount++
		rj.job.LastError = err.Error()
		res.Error = err.Error()
	} else {
		rj.job.LastError = ""
	}
	snapshot := rj.job
	s.mu.Unlock()

	if err != nil {
		logger.WithError(err).Warn("Job failed")
	}

	if s.store != nil {
		if serr := s.store.SaveJob(ctx, &snapshot); serr != nil {
			logger.WithError(serr).Warn("Failed to persist job state")
		}
	}
	return res
}

// Start runs the first tick immediately and then one tick per interval
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	logging.WithFields(map[string]interface{}{
		"interval": s.interval.String(),
		"jobs":     len(s.Jobs()),
	}).Info("Starting job scheduler")

	go s.loop(ctx, stopCh, doneCh)
	return nil
}

// loop runs until Stop or ctx cancellation. On exit it clears the running
// flag unless a newer Start already replaced its channels.
func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.doneCh == doneCh {
			s.running = false
		}
		s.mu.Unlock()
		close(doneCh)
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the running tick to finish.
// Stopping a loop that already exited, e.g. through ctx cancellation, is not an error.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.doneCh == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	done := s.doneCh
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()

	select {
	case <-done:
		logging.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the running state, the next tick and job snapshots
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	running, tick := s.running, s.tick
	s.mu.RUnlock()

	return Status{
		Running:  running,
		Tick:     tick,
		Interval: s.interval.String(),
		Jobs:     s.Jobs(),
	}
}

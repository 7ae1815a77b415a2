package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/surfaces/internal/catalog"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var (
	// ErrJobActive is returned when a function already has an unfinished job.
	ErrJobActive = errors.New("function already has an active job")
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// JobConfig describes a collect job.
type JobConfig struct {
	Function    string            `json:"function"`
	Metric      string            `json:"metric,omitempty"`
	NDim        int               `json:"ndim,omitempty"`
	Scoring     string            `json:"scoring,omitempty"`
	Space       catalog.SpaceSpec `json:"space"`
	Mode        string            `json:"mode,omitempty"`
	Patience    int               `json:"patience,omitempty"`
	RoundBudget int               `json:"roundBudget,omitempty"`
	Concurrent  int               `json:"concurrent,omitempty"`
	WarmStart   *bool             `json:"warmStart,omitempty"`
}

// Job represents a collect job
type Job struct {
	ID        string     `json:"id"`
	State     JobState   `json:"state"`
	Config    JobConfig  `json:"config"`
	Round     int        `json:"round"`
	Collected int        `json:"collected"`
	Total     int        `json:"total"`
	Best      *float64   `json:"best,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// JobManager manages the lifecycle of jobs. It admits at most one unfinished
// job per function.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	active      map[string]string // function -> job ID
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		active:      make(map[string]string),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job. The returned context is cancelled by
// CancelJob.
func (jm *JobManager) CreateJob(parent context.Context, config JobConfig) (Job, context.Context, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if id, busy := jm.active[config.Function]; busy {
		return Job{}, nil, fmt.Errorf("%w: %s (job %s)", ErrJobActive, config.Function, id)
	}

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}
	ctx, cancel := context.WithCancel(parent)

	jm.jobs[job.ID] = job
	jm.active[config.Function] = job.ID
	jm.cancels[job.ID] = cancel
	return *job, ctx, nil
}

// GetJob returns a snapshot of a job by ID
func (jm *JobManager) GetJob(id string) (Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, false
	}
	return *job, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartTime.Before(jobs[j].StartTime) })
	return jobs
}

// UpdateJob atomically updates a job using the provided function. A job that
// reaches a terminal state releases its function.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) (Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	updateFn(job)
	if job.State.Finished() {
		if jm.active[job.Config.Function] == id {
			delete(jm.active, job.Config.Function)
		}
		if cancel, ok := jm.cancels[id]; ok {
			cancel()
			delete(jm.cancels, id)
		}
	}
	return *job, nil
}

// CancelJob cancels an unfinished job. It reports false when the job is
// already finished.
func (jm *JobManager) CancelJob(id string) (bool, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.State.Finished() {
		return false, nil
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
	}
	return true, nil
}

// RemoveJob forgets a finished job.
func (jm *JobManager) RemoveJob(id string) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.State.Finished() {
		return fmt.Errorf("job %s is %s", id, job.State)
	}
	delete(jm.jobs, id)
	jm.broadcaster.CleanupJob(id)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, *job)
		}
	}
	return runningJobs
}

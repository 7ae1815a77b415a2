package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/surfaces/internal/catalog"
	"github.com/cwbudde/surfaces/internal/collect"
	"github.com/cwbudde/surfaces/internal/ml"
	"github.com/cwbudde/surfaces/internal/opt"
	"github.com/cwbudde/surfaces/internal/store"
	"github.com/cwbudde/surfaces/internal/surface"
)

// CollectDefaults fill collect settings a job request leaves unset.
type CollectDefaults struct {
	Patience    int
	RoundBudget int
	Concurrent  int
	WarmStart   bool
	TraceDir    string
}

// resolveJob builds the function, search space and mode of a job config.
func resolveJob(config JobConfig) (surface.Function, surface.SearchSpace, store.Mode, error) {
	metric, err := surface.ParseMetric(config.Metric)
	if err != nil {
		return nil, surface.SearchSpace{}, "", err
	}
	scoring, err := ml.ParseScoring(config.Scoring)
	if err != nil {
		return nil, surface.SearchSpace{}, "", err
	}
	fn, err := catalog.New(config.Function, catalog.Settings{
		Metric:  metric,
		NDim:    config.NDim,
		Scoring: scoring,
	})
	if err != nil {
		return nil, surface.SearchSpace{}, "", err
	}
	space, err := catalog.BuildSpace(fn, config.Space)
	if err != nil {
		return nil, surface.SearchSpace{}, "", err
	}
	mode, err := store.ParseMode(config.Mode)
	if err != nil {
		return nil, surface.SearchSpace{}, "", err
	}
	return fn, space, mode, nil
}

// runJob executes a collect job in the background.
func runJob(ctx context.Context, jm *JobManager, st store.Store, defaults CollectDefaults, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	fn, space, mode, err := resolveJob(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	running, err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.Total = space.Size()
	})
	if err != nil {
		return err
	}
	jm.broadcaster.Broadcast(eventFromJob(running))

	slog.Info("Starting job", "job_id", jobID, "function", fn.Name(), "points", space.Size())

	c := &collect.Collector{
		Store:       st,
		Patience:    firstNonZero(job.Config.Patience, defaults.Patience),
		RoundBudget: firstNonZero(job.Config.RoundBudget, defaults.RoundBudget),
		WarmStart:   defaults.WarmStart,
		OnRound: func(p collect.Progress) {
			updated, err := jm.UpdateJob(jobID, func(j *Job) {
				j.Round = p.Round
				j.Collected = p.Collected
				j.Total = p.Total
				if !math.IsNaN(p.Best) {
					best := p.Best
					j.Best = &best
				}
			})
			if err != nil {
				return
			}
			ev := eventFromJob(updated)
			ev.Added = p.Added
			jm.broadcaster.Broadcast(ev)
		},
	}
	if job.Config.WarmStart != nil {
		c.WarmStart = *job.Config.WarmStart
	}
	concurrent := firstNonZero(job.Config.Concurrent, defaults.Concurrent)
	c.Searcher = opt.GridSearch{MaxEvaluations: c.RoundBudget, Concurrent: concurrent}

	if defaults.TraceDir != "" {
		tw, err := store.NewTraceWriter(defaults.TraceDir, fn.Name(), true)
		if err != nil {
			slog.Warn("Round trace disabled", "job_id", jobID, "error", err)
		} else {
			defer tw.Close()
			c.Trace = tw
		}
	}

	start := time.Now()
	tbl, err := c.Collect(ctx, fn, space, mode)
	switch {
	case errors.Is(err, context.Canceled):
		markJobCancelled(jm, jobID)
		return err
	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	done, err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Collected = tbl.Len()
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"function", fn.Name(),
		"elapsed", time.Since(start),
		"rows", tbl.Len(),
	)
	jm.broadcaster.Broadcast(eventFromJob(done))
	return nil
}

func firstNonZero(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	job, uerr := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	if uerr == nil {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	job, err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	if err == nil {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

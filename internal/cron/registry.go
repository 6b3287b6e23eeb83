package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Job is one unit of scheduled maintenance: the offer sweep or a retention prune.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs with the minimum spacing between their runs.
type Registry struct {
	entries []entry
}

type entry struct {
	job   Job
	every time.Duration
}

// NewRegistry registers jobs that run on every cycle.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.RegisterEvery(job, 0)
	}
	return registry
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) {
	r.RegisterEvery(job, 0)
}

// RegisterEvery adds a job that is skipped until every has elapsed since its
// last run. Zero means every cycle.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.entries = append(r.entries, entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

func (r *Registry) due(lastRun map[string]time.Time, now time.Time) []Job {
	var due []Job
	for _, e := range r.entries {
		last, ran := lastRun[e.job.Name()]
		if !ran || e.every == 0 || now.Sub(last) >= e.every {
			due = append(due, e.job)
		}
	}
	return due
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	jobA := &stubJob{name: "offer-expiration"}
	jobB := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(jobA, nil)
	registry.RegisterEvery(jobB, time.Hour)
	registry.Register(nil)

	jobs := registry.Jobs()
	assert.Equal(t, []Job{jobA, jobB}, jobs)

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sweep := &stubJob{name: "offer-expiration"}
	prune := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(sweep)
	registry.RegisterEvery(prune, 24*time.Hour)

	assert.Equal(t, []Job{sweep, prune}, registry.due(map[string]time.Time{}, now))

	lastRun := map[string]time.Time{
		"offer-expiration": now.Add(-time.Minute),
		"outbox-retention": now.Add(-time.Hour),
	}
	assert.Equal(t, []Job{sweep}, registry.due(lastRun, now))

	lastRun["outbox-retention"] = now.Add(-24 * time.Hour)
	assert.Equal(t, []Job{sweep, prune}, registry.due(lastRun, now))
}

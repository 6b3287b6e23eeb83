package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces polls: the base interval when idle, doubling up to max while
// batches keep failing. Every wait gets jitter so replicas drift apart.
type pacer struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newPacer(base, max time.Duration) *pacer {
	if base <= 0 {
		base = defaultPollInterval
	}
	return &pacer{base: base, max: max, current: base}
}

func (p *pacer) idle() time.Duration {
	return withJitter(p.base)
}

func (p *pacer) failure() time.Duration {
	p.current = nextBackoff(p.current, p.base, p.max)
	return withJitter(p.current)
}

func (p *pacer) reset() {
	p.current = p.base
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, max)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

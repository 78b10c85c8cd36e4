package task

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiters is a per-task-name outbound rate limiter. It replaces the
// teacher's Redis+Lua sliding-window limiter (common/ratelimit), which
// coordinated a rate across a distributed fleet of workers — a concern
// this engine's single-process, in-process execution model doesn't have
// (see DESIGN.md). Each task name gets its own local token bucket guarding
// the rate of outbound calls that one task can issue; the buckets belong to
// the Limiters value, so every execution sharing it shares them.
type Limiters struct {
	mu       sync.Mutex
	perTask  map[string]*rate.Limiter
	newEntry func() *rate.Limiter
}

// NewLimiters builds a Limiters that lazily creates a token bucket of the
// given rate and burst for every task name seen.
func NewLimiters(r rate.Limit, burst int) *Limiters {
	return &Limiters{
		perTask: make(map[string]*rate.Limiter),
		newEntry: func() *rate.Limiter {
			return rate.NewLimiter(r, burst)
		},
	}
}

// Wait blocks until taskName's bucket has a token available or ctx is
// cancelled.
func (l *Limiters) Wait(ctx context.Context, taskName string) error {
	return l.limiterFor(taskName).Wait(ctx)
}

func (l *Limiters) limiterFor(taskName string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.perTask[taskName]
	if !ok {
		lim = l.newEntry()
		l.perTask[taskName] = lim
	}
	return lim
}

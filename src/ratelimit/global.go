package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultGlobalCapacity = 50
	DefaultGlobalPeriod   = time.Second
)

// GlobalLimiter gates every outbound request regardless of route. Capacity is
// refreshed once per period. A global 429 closes the gate until the last
// cooldown in progress has finished.
type GlobalLimiter struct {
	clock
	capacity int
	period   time.Duration

	mu          sync.Mutex
	remaining   int
	nextRefresh time.Time
	closed      bool
	reopen      chan struct{}
	sleeping    int
}

type GlobalSnapshot struct {
	Capacity    int       `json:"capacity"`
	Remaining   int       `json:"remaining"`
	NextRefresh time.Time `json:"next_refresh"`
	Closed      bool      `json:"closed"`
	Sleeping    int       `json:"sleeping"`
}

func NewGlobalLimiter(capacity int, period time.Duration, opts ...Option) *GlobalLimiter {
	if capacity <= 0 {
		capacity = DefaultGlobalCapacity
	}
	if period <= 0 {
		period = DefaultGlobalPeriod
	}
	return &GlobalLimiter{
		clock:     newClock(opts),
		capacity:  capacity,
		period:    period,
		remaining: capacity,
	}
}

// Wait blocks until the gate is open and a unit of global quota is available.
func (l *GlobalLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.closed {
			reopen := l.reopen
			l.mu.Unlock()
			select {
			case <-reopen:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		now := l.now()
		if l.nextRefresh.IsZero() || !now.Before(l.nextRefresh) {
			l.refresh(now)
		}
		if l.remaining > 0 {
			l.remaining--
			l.mu.Unlock()
			return nil
		}
		wait := l.nextRefresh.Sub(now)
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// HandleViolation serves a global rate limit cooldown. Concurrent violations
// share one closed gate which reopens, with a fresh quota, only when the last
// of them wakes up.
func (l *GlobalLimiter) HandleViolation(ctx context.Context, retryAfter time.Duration) error {
	l.enterCooldown()
	defer l.leaveCooldown()
	return l.sleep(ctx, retryAfter)
}

// Cooldown closes the gate like HandleViolation but serves the sleep in the
// background, for callers that will not retry.
func (l *GlobalLimiter) Cooldown(retryAfter time.Duration) {
	l.enterCooldown()
	go func() {
		defer l.leaveCooldown()
		_ = l.sleep(context.Background(), retryAfter)
	}()
}

func (l *GlobalLimiter) enterCooldown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sleeping++
	if !l.closed {
		l.closed = true
		l.reopen = make(chan struct{})
	}
}

func (l *GlobalLimiter) leaveCooldown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sleeping--
	if l.sleeping == 0 {
		l.closed = false
		close(l.reopen)
		l.refresh(l.now())
	}
}

func (l *GlobalLimiter) Snapshot() GlobalSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GlobalSnapshot{
		Capacity:    l.capacity,
		Remaining:   l.remaining,
		NextRefresh: l.nextRefresh,
		Closed:      l.closed,
		Sleeping:    l.sleeping,
	}
}

// refresh must be called with mu held.
func (l *GlobalLimiter) refresh(now time.Time) {
	l.remaining = l.capacity
	l.nextRefresh = now.Add(l.period)
}

package ratelimit

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type clock struct {
	now   func() time.Time
	sleep SleepFunc
}

func defaultClock() clock {
	return clock{now: time.Now, sleep: Sleep}
}

type Option func(*clock)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *clock) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleep overrides how waits are performed.
func WithSleep(fn SleepFunc) Option {
	return func(c *clock) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func newClock(opts []Option) clock {
	c := defaultClock()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

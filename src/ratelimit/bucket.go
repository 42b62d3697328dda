package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a route scoped quota shared by every route the server maps to it.
// At most one caller holds the bucket at a time; the holder is the only one
// allowed to consume or update its quota.
type Bucket struct {
	id          string
	passthrough bool
	gate        chan struct{}
	clock

	mu        sync.Mutex
	limit     int
	remaining int
	resetAt   time.Time
}

type BucketSnapshot struct {
	ID        string    `json:"id"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

func NewBucket(id string, opts ...Option) *Bucket {
	return &Bucket{
		id:        id,
		gate:      make(chan struct{}, 1),
		clock:     newClock(opts),
		limit:     1,
		remaining: 1,
	}
}

// Passthrough returns a bucket for routes whose quota is not known yet. It
// never waits and ignores updates.
func Passthrough() *Bucket {
	return &Bucket{passthrough: true, clock: defaultClock()}
}

func (b *Bucket) ID() string {
	return b.id
}

func (b *Bucket) IsPassthrough() bool {
	return b.passthrough
}

// Acquire takes the bucket gate and waits for the quota to reset if it is
// exhausted. The returned release func must be called once the response has
// been applied with Update.
func (b *Bucket) Acquire(ctx context.Context) (release func(), err error) {
	if b.passthrough {
		return func() {}, nil
	}
	select {
	case b.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release = sync.OnceFunc(func() { <-b.gate })
	if err := b.enter(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (b *Bucket) enter(ctx context.Context) error {
	b.mu.Lock()
	var wait time.Duration
	if now := b.now(); b.remaining <= 0 && now.Before(b.resetAt) {
		wait = b.resetAt.Sub(now)
	}
	b.mu.Unlock()

	if wait > 0 {
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		// Assume the window rolled over; the next Update corrects it.
		b.remaining = max(b.limit, 1)
	}
	b.remaining--
	return nil
}

// Update applies the quota disclosed by the latest response.
func (b *Bucket) Update(info Info) {
	if b.passthrough {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if info.Limit > 0 {
		b.limit = info.Limit
	}
	b.remaining = info.Remaining
	b.resetAt = info.ResetTime(b.now())
}

// Exhaust marks the bucket empty until retryAfter has elapsed.
func (b *Bucket) Exhaust(retryAfter time.Duration) {
	if b.passthrough {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining = 0
	b.resetAt = b.now().Add(retryAfter)
}

func (b *Bucket) Snapshot() BucketSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketSnapshot{
		ID:        b.id,
		Limit:     b.limit,
		Remaining: b.remaining,
		ResetAt:   b.resetAt,
	}
}

// Package bot drives a gateway session: it reconnects or resumes as the
// session asks and hands dispatches to registered handlers.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/ratelimit"
	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 5
	DefaultMaxBackoff  = time.Minute
)

// Session is the part of *gateway.Session the bot drives.
type Session interface {
	Connect(ctx context.Context, resume bool) error
	NextEvent(ctx context.Context) (*gateway.Event, error)
	Close() error
	SessionID() string
}

type Handler func(ctx context.Context, e *gateway.Event)

type Bot struct {
	session     Session
	maxAttempts int
	maxBackoff  time.Duration
	sleep       ratelimit.SleepFunc
	log         zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	any      []Handler
	inflight sync.WaitGroup
}

type Option func(*Bot)

// WithMaxAttempts bounds consecutive failed connection attempts.
func WithMaxAttempts(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

func WithMaxBackoff(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.maxBackoff = d
		}
	}
}

func WithSleep(fn ratelimit.SleepFunc) Option {
	return func(b *Bot) {
		if fn != nil {
			b.sleep = fn
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(b *Bot) {
		b.log = log
	}
}

func New(session Session, opts ...Option) *Bot {
	b := &Bot{
		session:     session,
		maxAttempts: DefaultMaxAttempts,
		maxBackoff:  DefaultMaxBackoff,
		sleep:       ratelimit.Sleep,
		log:         zerolog.Nop(),
		handlers:    make(map[string][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With().Str("component", "bot").Logger()
	return b
}

// On registers h for one dispatch type, e.g. "MESSAGE_CREATE".
func (b *Bot) On(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// OnAsync registers h like On but runs it on its own goroutine, so handlers
// that wait on REST calls do not hold up the receive loop. Run waits for them
// before returning.
func (b *Bot) OnAsync(eventType string, h Handler) {
	b.On(eventType, func(ctx context.Context, e *gateway.Event) {
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			b.call(ctx, h, e)
		}()
	})
}

// OnAny registers h for every dispatch.
func (b *Bot) OnAny(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.any = append(b.any, h)
}

// Run connects and keeps the session alive until ctx is done, which returns
// nil, or the session ends for good.
func (b *Bot) Run(ctx context.Context) error {
	defer b.session.Close()
	defer b.inflight.Wait()

	resume := false
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		delivered, err := b.runOnce(ctx, resume)
		if ctx.Err() != nil {
			return nil
		}
		if delivered {
			failures = 0
		}

		var (
			re *gateway.ReconnectError
			de *gateway.DisconnectedError
			pe *gateway.ProtocolError
		)
		switch {
		case errors.As(err, &re):
			resume = re.Resume
			b.log.Info().Bool("resume", resume).Msg("reconnecting to gateway")
			continue
		case errors.As(err, &de), errors.As(err, &pe):
			b.log.Error().Err(err).Msg("gateway session ended")
			return err
		case isPermanent(err):
			b.log.Error().Err(err).Msg("gateway endpoint lookup failed")
			return err
		}

		failures++
		if failures > b.maxAttempts {
			return fmt.Errorf("failed after %d attempts: %w", b.maxAttempts, err)
		}
		delay := b.backoff(failures)
		b.log.Error().Err(err).Int("attempt", failures).Dur("delay", delay).Msg("error occured. retrying...")
		if err := b.sleep(ctx, delay); err != nil {
			return nil
		}
		resume = b.session.SessionID() != ""
	}
}

func (b *Bot) runOnce(ctx context.Context, resume bool) (delivered bool, err error) {
	if err := b.session.Connect(ctx, resume); err != nil {
		return false, err
	}
	for {
		ev, err := b.session.NextEvent(ctx)
		if err != nil {
			return delivered, err
		}
		delivered = true
		b.dispatch(ctx, ev)
	}
}

func (b *Bot) dispatch(ctx context.Context, ev *gateway.Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Type]...)
	handlers = append(handlers, b.any...)
	b.mu.RUnlock()

	b.log.Debug().Object("event", ev).Int("handlers", len(handlers)).Msg("dispatch")
	for _, h := range handlers {
		b.call(ctx, h, ev)
	}
}

func (b *Bot) call(ctx context.Context, h Handler, ev *gateway.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event_name", ev.Type).Msg("event handler panicked")
		}
	}()
	h(ctx, ev)
}

func (b *Bot) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1))*1000) * time.Millisecond
	return min(delay, b.maxBackoff)
}

// isPermanent reports errors no retry will fix, like a rejected token.
func isPermanent(err error) bool {
	var he *rest.HTTPError
	if !errors.As(err, &he) {
		return errors.Is(err, rest.ErrMissingToken)
	}
	return he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
}

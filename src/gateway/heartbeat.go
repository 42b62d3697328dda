package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startHeartbeat runs the heartbeat monitor for c until stopHeartbeat is
// called or c is closed.
func (s *Session) startHeartbeat(c *connection, interval time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.hb
	s.hb = hb
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go func() {
		defer close(hb.done)
		s.heartbeating(ctx, c, interval, log)
	}()
}

func (s *Session) heartbeating(ctx context.Context, c *connection, interval time.Duration, log zerolog.Logger) {
	if err := s.sleep(ctx, s.jitter(interval)); err != nil {
		return
	}
	for {
		if c.isClosed() {
			return
		}
		if !s.acked.Load() {
			log.Warn().Msg("heartbeat was not acknowledged, closing connection")
			if err := c.close(NoHeartbeatAck); err != nil {
				log.Debug().Err(err).Msg("error while closing gateway connection")
			}
			return
		}
		s.acked.Store(false)
		if err := s.sendHeartbeat(ctx, c); err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to send heartbeat event")
			}
			return
		}
		log.Debug().Msg("gateway heartbeat event sent")
		if err := s.sleep(ctx, interval); err != nil {
			return
		}
	}
}

// stopHeartbeat cancels the monitor and waits for it to exit.
func (s *Session) stopHeartbeat() {
	s.mu.Lock()
	hb := s.hb
	s.hb = nil
	s.mu.Unlock()
	if hb == nil {
		return
	}
	hb.cancel()
	<-hb.done
}

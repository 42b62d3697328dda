// Package stats records the outcome of every REST request sent through the
// rate limited engine.
package stats

import (
	"context"
	"time"
)

type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeGlobalRateLimited Outcome = "global_rate_limited"
	OutcomeError             Outcome = "error"
)

// Event is one finished HTTP attempt.
type Event struct {
	Method  string
	Route   string
	Bucket  string
	Status  int
	Outcome Outcome
	At      time.Time
}

// Recorder persists request outcomes. Callers treat errors as best effort.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Source exposes aggregated counters, for the ops server.
type Source interface {
	Totals(ctx context.Context) (Counters, error)
}

type Counters struct {
	OK                int64 `json:"ok"`
	RateLimited       int64 `json:"rate_limited"`
	GlobalRateLimited int64 `json:"global_rate_limited"`
	Error             int64 `json:"error"`
}

func (c *Counters) add(o Outcome, n int64) {
	switch o {
	case OutcomeOK:
		c.OK += n
	case OutcomeRateLimited:
		c.RateLimited += n
	case OutcomeGlobalRateLimited:
		c.GlobalRateLimited += n
	case OutcomeError:
		c.Error += n
	}
}

// Total is the number of recorded attempts.
func (c Counters) Total() int64 {
	return c.OK + c.RateLimited + c.GlobalRateLimited + c.Error
}

// OutcomeFor maps a response status to an outcome.
func OutcomeFor(status int, global bool) Outcome {
	switch {
	case status == 429 && global:
		return OutcomeGlobalRateLimited
	case status == 429:
		return OutcomeRateLimited
	case status >= 200 && status < 300:
		return OutcomeOK
	default:
		return OutcomeError
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// https://discord.com/developers/docs/topics/rate-limits#header-format
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderResetAfter = "X-RateLimit-Reset-After"
	HeaderBucket     = "X-RateLimit-Bucket"
	HeaderGlobal     = "X-RateLimit-Global"
	HeaderScope      = "X-RateLimit-Scope"
	HeaderRetryAfter = "Retry-After"
)

// Info is the quota state disclosed by a single response.
type Info struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	ResetAfter time.Duration
	// HasResetAfter is set when the header was sent, zero included.
	HasResetAfter bool
	Bucket        string
	Global        bool
	Scope         string
}

// ParseInfo reads the rate limit headers of a response. ok is false when the
// response does not carry a remaining count.
func ParseInfo(h http.Header) (info Info, ok bool) {
	if h == nil {
		return Info{}, false
	}
	remaining := strings.TrimSpace(h.Get(HeaderRemaining))
	if remaining == "" {
		return Info{}, false
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return Info{}, false
	}
	info.Remaining = n
	if limit, err := strconv.Atoi(strings.TrimSpace(h.Get(HeaderLimit))); err == nil {
		info.Limit = limit
	}
	info.ResetAfter, info.HasResetAfter = parseSeconds(h.Get(HeaderResetAfter))
	if reset, err := strconv.ParseFloat(strings.TrimSpace(h.Get(HeaderReset)), 64); err == nil && reset > 0 {
		sec, frac := math.Modf(reset)
		info.ResetAt = time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond)).UTC()
	}
	info.Bucket = strings.TrimSpace(h.Get(HeaderBucket))
	info.Global = strings.EqualFold(strings.TrimSpace(h.Get(HeaderGlobal)), "true")
	info.Scope = strings.TrimSpace(h.Get(HeaderScope))
	return info, true
}

// ResetTime resolves the absolute reset time. Reset-After is preferred since it
// does not depend on the local clock agreeing with the server.
func (i Info) ResetTime(now time.Time) time.Time {
	if i.HasResetAfter {
		return now.Add(i.ResetAfter)
	}
	return i.ResetAt
}

// RetryAfterHeader parses the Retry-After header in seconds.
func RetryAfterHeader(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	d, _ := parseSeconds(h.Get(HeaderRetryAfter))
	return d
}

// Seconds converts a fractional second count from a response body.
func Seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func parseSeconds(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return Seconds(v), true
}

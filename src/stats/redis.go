package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "siren:rest"
	DefaultRedisTTL    = 24 * time.Hour
)

// Redis stores counters in hashes:
//
//	<prefix>:total             outcome -> count
//	<prefix>:minute:<yyyymmddhhmm> outcome -> count, expires after ttl
//	<prefix>:route             "<METHOD> <route>:<outcome>" -> count
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithTTL sets the expiry of the per minute hashes. Zero disables expiry.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

func NewRedis(rdb redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:    rdb,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)

	minuteKey := r.minuteKey(at)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, minuteKey, r.ttl)
	}

	if route := strings.TrimSpace(ev.Method + " " + ev.Route); route != "" {
		pipe.HIncrBy(ctx, r.prefix+":route", route+":"+field, 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Totals(ctx context.Context) (Counters, error) {
	if r == nil || r.rdb == nil {
		return Counters{}, nil
	}
	h, err := r.rdb.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read totals: %w", err)
	}
	return countersFromHash(h), nil
}

func (r *Redis) totalKey() string {
	return r.prefix + ":total"
}

func (r *Redis) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func countersFromHash(h map[string]string) Counters {
	var c Counters
	for field, raw := range h {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		c.add(Outcome(field), n)
	}
	return c
}

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hendrywilliam/sirengate/src/config"
	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const redisPingTimeout = 5 * time.Second

// statsBackend is the configured REST outcome store. source is nil when
// stats are disabled.
type statsBackend struct {
	recorder stats.Recorder
	source   stats.Source
	close    func() error
}

func newStats(ctx context.Context, cfg config.StatsConfig) (*statsBackend, error) {
	switch cfg.Driver {
	case "none":
		return &statsBackend{recorder: stats.Nop{}, close: func() error { return nil }}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("stats: redis %s: %w", cfg.Redis.Address, err)
		}
		store := stats.NewRedis(rdb, stats.WithPrefix(cfg.Redis.Prefix), stats.WithTTL(cfg.Redis.TTL))
		return &statsBackend{recorder: store, source: store, close: rdb.Close}, nil
	default:
		store := stats.NewMemory()
		return &statsBackend{recorder: store, source: store, close: func() error { return nil }}, nil
	}
}

func newREST(cfg *config.Config, rec stats.Recorder, log zerolog.Logger) *rest.REST {
	opts := []rest.Option{
		rest.WithBaseURL(cfg.API.URL()),
		rest.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		rest.WithMaxAttempts(cfg.RateLimit.MaxAttempts),
		rest.WithGlobalLimit(cfg.RateLimit.GlobalCapacity, cfg.RateLimit.GlobalPeriod),
		rest.WithLogger(log),
	}
	if cfg.API.UserAgent != "" {
		opts = append(opts, rest.WithUserAgent(cfg.API.UserAgent))
	}
	if rec != nil {
		opts = append(opts, rest.WithStats(rec))
	}
	return rest.NewREST(cfg.Token, opts...)
}

func gatewayConfig(cfg *config.Config, log zerolog.Logger) gateway.Config {
	return gateway.Config{
		Token:    cfg.Token,
		Intents:  cfg.Intents,
		Version:  cfg.API.Version,
		Encoding: cfg.Gateway.Encoding,
		Properties: structs.IdentifyEventProperties{
			Os:      cfg.Identify.OS,
			Browser: cfg.Identify.Browser,
			Device:  cfg.Identify.Device,
		},
		ClosePolicy: gateway.ClosePolicy{
			Resume:    cfg.Gateway.ResumeCloseCodes,
			Reconnect: cfg.Gateway.ReconnectCloseCodes,
		},
		SendLimiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.Gateway.SendPerMinute)), cfg.Gateway.SendBurst),
		IdentifyLimiter: rate.NewLimiter(rate.Every(cfg.Gateway.IdentifyInterval), 1),
		Logger:          log,
	}
}

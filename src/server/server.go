// Package server exposes the bot's gateway and rate limit state over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/rest"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/rs/zerolog"
)

type GatewayStatus interface {
	Status() gateway.Status
}

type RateLimits interface {
	Snapshot() rest.Snapshot
}

type Server struct {
	router  *fiber.App
	gateway GatewayStatus
	limits  RateLimits
	stats   stats.Source
	log     zerolog.Logger
	started time.Time
}

// NewServer builds the router. src may be nil when stats are disabled.
func NewServer(gw GatewayStatus, limits RateLimits, src stats.Source, log zerolog.Logger) *Server {
	server := &Server{
		gateway: gw,
		limits:  limits,
		stats:   src,
		log:     log.With().Str("component", "server").Logger(),
		started: time.Now(),
	}
	server.setupRouter()
	return server
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type rateLimitsResponse struct {
	rest.Snapshot
	Stats *stats.Counters `json:"stats,omitempty"`
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Use(server.RequestIDMiddleware)
	router.Use(server.AccessLogMiddleware)
	router.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(healthResponse{
			Status: "ok",
			Uptime: time.Since(server.started).Round(time.Second).String(),
		})
	})
	router.Get("/status", func(c fiber.Ctx) error {
		return c.JSON(server.gateway.Status())
	})
	router.Get("/ratelimits", func(c fiber.Ctx) error {
		res := rateLimitsResponse{Snapshot: server.limits.Snapshot()}
		if server.stats != nil {
			totals, err := server.stats.Totals(c.Context())
			if err != nil {
				server.log.Error().Err(err).Msg("failed to read request stats")
				return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "stats unavailable"})
			}
			res.Stats = &totals
		}
		return c.JSON(res)
	})
	server.router = router
}

func (server *Server) App() *fiber.App {
	return server.router
}

// StartServer blocks until ctx is done and the server has shut down.
func (server *Server) StartServer(ctx context.Context, addr string) error {
	server.log.Info().Str("address", addr).Msg("server start")
	return server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
		OnShutdownSuccess: func() {
			server.log.Info().Msg("server stopped.")
		},
	})
}

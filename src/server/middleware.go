package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware keeps a caller supplied request id or assigns one.
func (server *Server) RequestIDMiddleware(c fiber.Ctx) error {
	id := c.Get(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(HeaderRequestID, id)
	c.Locals("request_id", id)
	return c.Next()
}

func (server *Server) AccessLogMiddleware(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	id, _ := c.Locals("request_id").(string)
	server.log.Debug().
		Str("request_id", id).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")
	return err
}

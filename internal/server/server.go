// Package server exposes liveness, readiness and ticket statistics over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/xaenox/modmail-bot/internal/bot"
)

const probeTimeout = 2 * time.Second

// Source is the part of the bot the probes read.
type Source interface {
	Ready(ctx context.Context) error
	Stats(ctx context.Context) (bot.Stats, error)
}

type Server struct {
	app    *fiber.App
	source Source
	logger *zap.Logger
}

func New(source Source, logger *zap.Logger) *Server {
	s := &Server{
		app:    fiber.New(fiber.Config{DisableStartupMessage: true}),
		source: source,
		logger: logger,
	}
	s.app.Get("/healthz", s.live)
	s.app.Get("/readyz", s.ready)
	s.app.Get("/stats", s.stats)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks until the server stops.
func (s *Server) Listen(addr string) error {
	s.logger.Info("Health server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

func (s *Server) ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	if err := s.source.Ready(ctx); err != nil {
		s.logger.Warn("Readiness check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": err.Error(),
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) stats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	st, err := s.source.Stats(ctx)
	if err != nil {
		s.logger.Error("Failed to collect stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"code": "INTERNAL", "message": "stats unavailable"},
		})
	}
	return c.JSON(st)
}

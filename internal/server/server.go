package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atlas-pay/atlas_pay/internal/config"
	"github.com/atlas-pay/atlas_pay/internal/jobs"
	"github.com/atlas-pay/atlas_pay/internal/routes"
)

// Server wraps the Fiber application, its dependencies, and the job worker.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	worker *jobs.Worker

	cancelWorker context.CancelFunc
}

// New instantiates the HTTP server and delegates wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	worker, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, worker: worker}, nil
}

// Listen starts the job worker and the HTTP server.
func (s *Server) Listen() error {
	workerCtx, cancel := context.WithCancel(context.Background())
	s.cancelWorker = cancel
	go s.worker.Run(workerCtx)

	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the worker and gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelWorker != nil {
		s.cancelWorker()
	}
	return s.app.ShutdownWithContext(ctx)
}

package server

import (
	"context"
	"time"

	"backend-routetrack/internal/auth"
	"backend-routetrack/internal/config"
	"backend-routetrack/internal/db"
	"backend-routetrack/internal/observability"
	"backend-routetrack/internal/route"
	"backend-routetrack/internal/stream"
	"backend-routetrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracking *tracking.Service
	Routes   *route.Service
	Log      *logrus.Logger
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, lg *logrus.Logger) (*Server, error) {
	if lg == nil {
		lg = observability.Discard()
	}
	analyzer, err := route.NewAnalyzer(route.AnalyzerConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Output: lg.Writer()}))

	var querier db.Querier
	if pool != nil {
		querier = pool
	}

	hub := stream.NewHub(redisClient, lg)
	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       pool,
		Redis:    redisClient,
		Stream:   hub,
		Tracking: tracking.NewService(querier, hub, redisClient, analyzer, lg),
		Routes:   route.NewService(querier),
		Log:      lg,
	}
	hub.SetInitialData(s.Tracking.InitialData)

	registerRoutes(s)
	return s, nil
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingRedis(ctx, s.Redis); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "redis": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	route.RegisterRoutes(s.App.Group("/routes"), s.Routes, jwtMiddleware)
	tracking.RegisterRoutes(s.App.Group("/tracking"), s.Tracking, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close stops the realtime hub only.
func (s *Server) Close() {
	s.Stream.Close()
}

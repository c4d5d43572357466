// Package server exposes probes, scans and scan history over HTTP.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/rendis/rankgrid/internal/engine/resource"
	"github.com/rendis/rankgrid/internal/engine/scanner"
	"github.com/rendis/rankgrid/internal/engine/storage"
	"github.com/rendis/rankgrid/internal/logging"
	"github.com/rendis/rankgrid/internal/metrics"
)

// scanSlack is added to the scanner's worst-case budget before a synchronous
// scan request is cut off.
const scanSlack = 5 * time.Second

// Dependencies wires the server to the engine. Store may be nil, in which case
// scans are returned but not persisted and history routes answer 503.
type Dependencies struct {
	Scanner *scanner.Scanner
	Store   *resource.Handle[*storage.Store]
	Metrics *metrics.Recorder
	Logger  logging.Logger
	Version string

	// RateLimitPerMinute caps requests per client IP. Zero disables the limiter.
	RateLimitPerMinute int
}

type Server struct {
	app  *fiber.App
	deps Dependencies
	log  logging.Logger
}

// New builds the fiber app and registers every route.
func New(deps Dependencies) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	s := &Server{
		deps: deps,
		log:  logging.OrNop(deps.Logger).Named("http"),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "rankgrid",
		DisableStartupMessage: true,
		BodyLimit:             64 * 1024,
		ErrorHandler:          errorHandler,
	})
	s.routes()
	return s
}

// App returns the underlying fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", logging.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	app := s.app

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(s.observe())

	app.Get("/metrics", s.metricsHandler())
	app.Get("/v1/health", s.health)

	if s.deps.RateLimitPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.deps.RateLimitPerMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
			},
		}))
	}

	v1 := app.Group("/v1")
	v1.Post("/probe", s.probe)
	v1.Post("/scans", s.createScan)
	v1.Get("/scans", s.listScans)
	v1.Get("/scans/:id", s.getScan)
	v1.Delete("/scans/:id", s.deleteScan)
	v1.Get("/scans/:id/geojson", s.exportScan("geojson"))
	v1.Get("/scans/:id/csv", s.exportScan("csv"))
}

// observe records request metrics and a debug access log line.
func (s *Server) observe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// render now so the recorded status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		s.deps.Metrics.ObserveHTTP(c.Method(), path, status)
		s.log.Debug("request",
			logging.String("method", c.Method()),
			logging.String("path", c.Path()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) metricsHandler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(s.deps.Metrics.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// store acquires the history store, or reports why it cannot.
func (s *Server) store(c *fiber.Ctx) (*storage.Store, bool, error) {
	if s.deps.Store == nil {
		return nil, false, errUnavailable(c, "scan history is not configured")
	}
	st, err := s.deps.Store.Acquire(c.UserContext())
	if err != nil {
		s.log.Error("opening store", logging.Err(err))
		return nil, false, errUnavailable(c, "scan history is unavailable")
	}
	return st, true, nil
}

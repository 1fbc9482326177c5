package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/metrics"
	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/service"
)

type Options struct {
	CORSOrigins string
	Metrics     *metrics.Metrics
}

// NewApp builds the fiber app with middleware, health and metrics
// endpoints and every API route.
func NewApp(svcs *service.Services, opts Options) *fiber.App {
	if opts.CORSOrigins == "" {
		opts.CORSOrigins = "*"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(requestLogger(opts.Metrics))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.CORSOrigins,
		AllowHeaders: "*",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := svcs.Repos.Ping(c.UserContext()); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			return c.Status(fiber.StatusServiceUnavailable).SendString("db unavailable")
		}
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))

	Register(app, svcs)
	return app
}

// requestLogger logs every request and counts it by route template.
func requestLogger(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		m.HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()

		evt := log.Info()
		if status >= fiber.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
		return nil
	}
}

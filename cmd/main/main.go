package main

// @title Go WhatsApp Dispatch Gateway
// @version 1.0.0
// @description Single-session WhatsApp gateway for paced bulk dispatch of text and image messages, with chat resolution and delivery tracking

// @contact.name gdbrns
// @contact.url https://github.com/gdbrns/go-whatsapp-dispatch-gateway

// @license.name MIT
// @license.url https://github.com/gdbrns/go-whatsapp-dispatch-gateway/blob/main/LICENSE

// @host localhost:7001
// @BasePath /

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal/metrics"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-dispatch-gateway/pkg/router"

	"github.com/gdbrns/go-whatsapp-dispatch-gateway/internal"
)

const shutdownTimeout = 5 * time.Second

func main() {
	metrics.Register(prometheus.DefaultRegisterer)

	// Batches and background jobs run on ctx; it is cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := internal.Startup(ctx)
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	app := newApp()
	internal.Routes(app, svc)

	jobs := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger)), cron.WithSeconds())
	internal.Routines(jobs, svc)

	addr := listenAddress()
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Print(nil).Info("Shutdown signal received")

	// in-flight batches stop at their next pacing wait and answer with partial results
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.Print(nil).Error(err.Error())
	}

	<-jobs.Stop().Done()
	svc.Shutdown()
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: router.HttpErrorHandler,
		BodyLimit:    router.BodyLimitBytes(),
	})

	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())
	app.Use(router.HttpMetrics())

	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, X-Request-ID",
		AllowMethods: "GET,POST",
	}))

	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Directory listings only; sends are never cached
	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds, "/list-groups", "/list-contacts"))
	app.Use(router.HttpRealIP())

	app.Get("/favicon.ico", router.ResponseNoContent)
	return app
}

// listenAddress reads SERVER_ADDRESS (default all interfaces) and
// SERVER_PORT (default 7001).
func listenAddress() string {
	host := env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	port := env.GetEnvStringOrDefault("SERVER_PORT", "7001")
	return net.JoinHostPort(host, port)
}

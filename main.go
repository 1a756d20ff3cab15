package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/contacto31/ama-tyc-service/controllers"
	"github.com/contacto31/ama-tyc-service/database"
	"github.com/contacto31/ama-tyc-service/lifecycle"
	"github.com/contacto31/ama-tyc-service/middlewares"
	"github.com/contacto31/ama-tyc-service/routes"
	"github.com/contacto31/ama-tyc-service/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	// ---- Database
	database.Connect()
	database.AutoMigrate()

	// ---- Webhook signing secret (fail closed: unsigned notifications
	// are worse than no server)
	webhookSecret := os.Getenv("WEBHOOK_SECRET")
	if webhookSecret == "" {
		log.Fatal("WEBHOOK_SECRET not configured, refusing to start")
	}

	// ---- Dispatcher + lifecycle engine
	dispatcher := webhook.New(webhook.Config{
		Secret:    webhookSecret,
		Timeout:   time.Duration(envInt("WEBHOOK_TIMEOUT_SECONDS", 5)) * time.Second,
		QueueSize: envInt("WEBHOOK_QUEUE_SIZE", webhook.DefaultQueueSize),
		Workers:   envInt("WEBHOOK_WORKERS", webhook.DefaultWorkers),
	})
	controllers.Engine = lifecycle.New(database.NewConsentStore(database.DB), dispatcher)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	controllers.BaseURL = os.Getenv("CONSENT_BASE_URL")
	if controllers.BaseURL == "" {
		controllers.BaseURL = "http://localhost:" + port
	}

	// ---- Limits (configurable via env)
	bodyLimitBytes := envInt("BODY_LIMIT_BYTES", 0)
	if bodyLimitBytes <= 0 {
		bodyLimitBytes = envInt("BODY_LIMIT_MB", 1) * 1024 * 1024
	}

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    bodyLimitBytes,
	})

	// ---- CORS
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Internal-Secret",
	}))

	// ---- Access logs
	app.Use(logger.New())

	// ---- Global rate limiter (the public token surface must not be
	// enumerable; tune via env)
	rlMax := envInt("RATE_LIMIT_MAX", 60)
	rlWindow := time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	app.Use(limiter.New(limiter.Config{
		Max:        rlMax,
		Expiration: rlWindow,
	}))

	// ---- Routes
	routes.Register(app)

	// ---- Start, draining in-flight webhook deliveries on shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		_ = app.Shutdown()
	}()

	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
	dispatcher.Close()
}

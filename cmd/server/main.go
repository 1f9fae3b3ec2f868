package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/flowreels/api/internal/auth"
	"github.com/flowreels/api/internal/client"
	"github.com/flowreels/api/internal/config"
	"github.com/flowreels/api/internal/handler"
	"github.com/flowreels/api/internal/middleware"
	"github.com/flowreels/api/internal/observer"
	"github.com/flowreels/api/internal/realtime"
	"github.com/flowreels/api/internal/service"
	"github.com/flowreels/api/internal/store"
	ws "github.com/flowreels/api/internal/websocket"
	"github.com/flowreels/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Connect to Postgres
	db, err := store.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	redisAvailable := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
		redisAvailable = false
	}

	// Realtime change feed: Redis pub/sub when available, in-process otherwise
	var feed realtime.Feed
	if redisAvailable {
		feed = realtime.NewRedisFeed(redisClient)
	} else {
		log.Println("Info: using in-process change feed")
		feed = realtime.NewMemoryFeed()
	}

	// Initialize Asynq client (watchdog scheduling)
	var asynqClient *asynq.Client
	if redisAvailable {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
	}

	// Initialize validator
	validate := validator.New()

	// Initialize external clients
	analysisClient := client.NewAnalysisClient(&cfg.Analysis)
	if !analysisClient.IsConfigured() {
		log.Println("Info: analysis webhook not configured, submissions will skip the handoff")
	}

	// Initialize R2 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.Storage)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storageClient = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Zitadel.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	processingTimeout := time.Duration(cfg.Analysis.ProcessingTimeout) * time.Minute
	videoService := service.NewVideoService(db, storageClient, analysisClient, feed, asynqClient, processingTimeout)
	feedbackService := service.NewFeedbackService(db, feed)

	// Initialize WebSocket hub
	hub := ws.NewHub(db, feed, observer.Options{})
	go hub.Run()

	// Initialize handlers
	videoHandler := handler.NewVideoHandler(videoService, validate)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    210 * 1024 * 1024, // submissions up to 200MB plus form overhead
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"postgres": true,
				"redis":    redisAvailable,
				"analysis": analysisClient.IsConfigured(),
				"storage":  storageClient != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Analysis system callback (shared-secret auth, not user auth)
	app.Post("/webhooks/feedback",
		middleware.WebhookAuthMiddleware(cfg.Analysis.CallbackSecret),
		feedbackHandler.Ingest,
	)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	videos := api.Group("/videos")
	videos.Post("/", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), videoHandler.Upload)
	videos.Get("/", videoHandler.List)
	videos.Get("/:videoId/status", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), videoHandler.Status)
	videos.Get("/:videoId/feedback", videoHandler.Feedback)
	videos.Post("/:videoId/retry", rateLimiter.RetryLimit(cfg.RateLimit.RetryPerMin), videoHandler.Retry)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/videos/:videoId", websocket.New(func(c *websocket.Conn) {
		videoID := c.Params("videoId")
		hub.HandleConnection(c, videoID)
	}))

	// Start Asynq worker server (stale-job watchdog)
	if redisAvailable {
		go startWorkerServer(cfg, db, feed)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, db *store.Store, feed realtime.Feed) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 5,
			Queues: map[string]int{
				"watchdog": 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	watchdog := worker.NewWatchdog(db, feed)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeWatchdog, watchdog.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

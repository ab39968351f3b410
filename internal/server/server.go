// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"log"
	"strings"
	"time"

	"helpboard/internal/attributes"
	"helpboard/internal/auth"
	"helpboard/internal/config"
	"helpboard/internal/gateway"
	"helpboard/internal/middleware"
	"helpboard/internal/models"
	"helpboard/internal/notifications"
	"helpboard/internal/repository"
	"helpboard/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// wireableHub is implemented by every WebSocket hub that can be wired to
// Redis pub/sub and gracefully shut down.
type wireableHub interface {
	Name() string
	StartWiring(ctx context.Context, n *notifications.Notifier) error
	Shutdown(ctx context.Context) error
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	userRepo       repository.UserRepository
	itemRepo       repository.ItemRepository
	requestRepo    repository.RequestRepository
	messageRepo    repository.MessageRepository
	notifier       *notifications.Notifier
	requestHub     *notifications.RequestHub
	hubs           []wireableHub
	tokens         *auth.Tokens
	revocations    *auth.Revocations
	authn          *auth.Authenticator
	requests       *service.RequestService
	chatGate       *service.ChatGate
	attrs          attributes.Provider
	gateway        *gateway.Gateway
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; the server then runs as a single instance.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("helpboard-api"),
		userRepo:       repository.NewUserRepository(db),
		itemRepo:       repository.NewItemRepository(db),
		requestRepo:    repository.NewRequestRepository(db),
		messageRepo:    repository.NewMessageRepository(db),
		notifier:       notifications.NewNotifier(redisClient),
		requestHub:     notifications.NewRequestHub(),
	}
	s.hubs = []wireableHub{s.requestHub}

	s.tokens = auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiration)
	s.revocations = auth.NewRevocations(redisClient)
	s.authn = auth.NewAuthenticator(s.tokens, s.userRepo, s.revocations)

	fanout := notifications.NewFanout(s.requestHub, s.notifier)
	s.requests = service.NewRequestService(db, s.requestRepo, fanout)
	s.chatGate = service.NewChatGate(s.requests, service.NewMessageRelay(fanout), s.messageRepo, cfg.ChatMaxMessageLength)

	s.attrs = newAttributeProvider(cfg, redisClient)
	s.gateway = gateway.New(
		s.authn,
		s.chatGate,
		s.requestHub,
		middleware.NewSendLimiter(redisClient, cfg.ChatSendLimit, time.Minute),
		middleware.Logger,
	)

	return s, nil
}

func newAttributeProvider(cfg *config.Config, rdb *redis.Client) attributes.Provider {
	if cfg.WSAttributeStore == config.AttributeStoreRedis {
		if rdb != nil {
			return attributes.NewRedisProvider(rdb, cfg.WSSessionTTL)
		}
		log.Printf("WARNING: WS_ATTRIBUTE_STORE=redis but Redis is unavailable; using in-memory connection attributes")
	}
	return attributes.NewMemoryProvider()
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.ErrRateLimited)
		},
	}))
}

// SetupRoutes configures all routes for the application. Public routes are
// registered before the protected group, whose auth middleware applies to
// everything under /api registered after it.
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// The chat socket authenticates with its first frame, not at the HTTP layer.
	ws := api.Group("/ws", s.UpgradeRequired())
	ws.Get("/chat", s.WebSocketChatHandler())

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/register", middleware.RateLimit(
		s.redis, 3, 10*time.Minute, "register"), s.Register)
	authGroup.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	authGroup.Post("/logout", s.AuthRequired(), s.Logout)

	// Public catalog
	publicItems := api.Group("/items")
	publicItems.Get("/", s.GetItems)
	publicItems.Get("/:id", s.GetItem)

	publicUsers := api.Group("/users")
	publicUsers.Get("/:id", s.GetUserProfile)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	items := protected.Group("/items")
	items.Post("/", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_item"), s.CreateItem)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	items.Post("/:id/request", middleware.RateLimit(
		s.redis, 10, time.Minute, "open_request"), s.OpenRequest)
	items.Put("/:id", s.UpdateItem)
	items.Delete("/:id", s.DeleteItem)

	requests := protected.Group("/requests")
	requests.Get("/:id/messages", s.GetRequestMessages)
	requests.Patch("/:id/status", s.UpdateRequestStatus)
	requests.Get("/:id", s.GetRequest)

	users := protected.Group("/users")
	users.Get("/:id/requests", s.GetUserRequests)
}

// LivenessCheck handles liveness checks
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness checks. The database is required;
// Redis only degrades the report, since a single instance runs without it.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus != "healthy":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// AuthRequired returns the authentication middleware. The bearer token comes
// from the Authorization header, or the token query parameter outside /api/ws.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := ""
		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" && !strings.HasPrefix(c.Path(), "/api/ws") {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		identity, subject, err := s.authn.Authenticate(c.UserContext(), tokenString)
		if err != nil {
			return models.RespondWithAppError(c, err)
		}

		// Store user ID in context
		c.Locals("userID", identity.ID)
		c.Locals("identity", identity)
		c.Locals("subject", subject)
		// Sync to UserContext for logging and downstream services
		c.SetUserContext(middleware.WithUserID(c.UserContext(), identity.ID))

		return c.Next()
	}
}

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "HelpBoard API",
		BodyLimit: 1 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start wires the hubs and serves until the app is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	// Wire all hubs to Redis subscriber if available
	if s.notifier.Enabled() {
		for _, h := range s.hubs {
			h := h
			go func() {
				if err := h.StartWiring(s.shutdownCtx, s.notifier); err != nil {
					log.Printf("failed to start %s wiring: %v", h.Name(), err)
				}
			}()
		}
	}

	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop all wiring goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Close WebSocket connections gracefully before the listener goes away
	for _, h := range s.hubs {
		if err := h.Shutdown(ctx); err != nil {
			log.Printf("error shutting down %s: %v", h.Name(), err)
		}
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close database connection
	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	// Close Redis connection
	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}

// Package api serves the REST surface, the websocket endpoint, health and
// metrics over Fiber.
package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/Noah-Sfez/whatsup/config"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/Noah-Sfez/whatsup/modules/gateway"
	"github.com/Noah-Sfez/whatsup/modules/uploads"
	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	redisstore "github.com/gofiber/storage/redis/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker is a module whose health is reported by /health.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// Deps are the in-process collaborators of the API module.
type Deps struct {
	Gateway *gateway.GatewayModule
	Uploads *uploads.UploadsModule
	Checks  []HealthChecker
	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// APIModule is the HTTP API module.
type APIModule struct {
	cfg         config.HTTPConfig
	redis       config.RedisConfig
	deps        Deps
	app         *fiber.App
	authAdapter auth.AuthPort
	chatAdapter chatmod.ChatPort
	limitStore  *redisstore.Storage
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg config.HTTPConfig, redisCfg config.RedisConfig, deps Deps) *APIModule {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &APIModule{
		cfg:   cfg,
		redis: redisCfg,
		deps:  deps,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth", "chat"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authAdapter = auth.NewAuthAdapter(container)
	case "chat":
		m.chatAdapter = chatmod.NewChatAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	if m.authAdapter == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.chatAdapter == nil {
		return fmt.Errorf("chat dependency not set")
	}
	if m.deps.Gateway == nil || m.deps.Gateway.Gateway() == nil {
		return fmt.Errorf("gateway not started")
	}

	var uploader Uploader
	if m.deps.Uploads != nil {
		if svc := m.deps.Uploads.Service(); svc != nil {
			uploader = svc
		}
	}

	m.app = m.buildApp(NewHandlers(m.authAdapter, m.chatAdapter, uploader), m.deps.Gateway.Gateway())

	addr := ":" + strconv.Itoa(m.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	// Wait briefly to catch immediate startup errors
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	log.Printf("[api] HTTP server started on %s", addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	err := m.app.ShutdownWithContext(ctx)
	if m.limitStore != nil {
		if cerr := m.limitStore.Close(); cerr != nil {
			log.Printf("[api] Error closing limiter storage: %v", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port": m.cfg.Port,
		},
	}
}

// buildApp creates the Fiber app with its middleware and routes. gw may be nil,
// in which case /ws is not served.
func (m *APIModule) buildApp(h *Handlers, gw *gateway.Gateway) *fiber.App {
	bodyLimit := 4 << 20
	if h.uploads != nil {
		bodyLimit = max(bodyLimit, int(h.uploads.MaxBytes())+1<<20)
	}

	app := fiber.New(fiber.Config{
		AppName:               "whatsup",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		BodyLimit:             bodyLimit,
	})

	app.Use(fiberrecover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	origins := m.cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", m.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.deps.Gatherer, promhttp.HandlerOpts{})))

	if gw != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(func(c *websocket.Conn) {
			gw.Serve(c)
		}))
	}

	app.Get(uploads.URLPrefix+":name", h.GetImage)

	v1 := app.Group("/api/v1")
	if m.cfg.RateLimit > 0 {
		v1.Use(m.rateLimiter())
	}

	authRoutes := v1.Group("/auth")
	authRoutes.Post("/register", h.Register)
	authRoutes.Post("/login", h.Login)
	authRoutes.Post("/refresh", h.Refresh)

	protected := v1.Group("", AuthMiddleware(h.auth))

	protected.Get("/users", h.ListUsers)
	protected.Get("/users/search", h.SearchUser)
	protected.Post("/users/check", h.CheckEmails)

	protected.Post("/conversations", h.CreateConversation)
	protected.Get("/conversations", h.ListConversations)
	protected.Get("/conversations/:id/messages", h.ConversationHistory)
	protected.Post("/conversations/:id/messages", h.PostConversationMessage)

	protected.Post("/groups", h.CreateGroup)
	protected.Get("/groups", h.ListGroups)
	protected.Post("/groups/:id/join", h.JoinGroup)
	protected.Get("/groups/:id/messages", h.GroupHistory)
	protected.Post("/groups/:id/messages", h.PostGroupMessage)

	protected.Post("/upload/image", h.UploadImage)

	return app
}

// rateLimiter limits HTTP requests per client IP. Counters live in Redis when
// it is configured so every instance shares them.
func (m *APIModule) rateLimiter() fiber.Handler {
	window := m.cfg.RateWindow
	if window <= 0 {
		window = time.Minute
	}
	cfg := limiter.Config{
		Max:        m.cfg.RateLimit,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error: "Too many requests",
				Code:  "rate_limited",
			})
		},
	}
	if m.redis.Enabled() && m.limitStore == nil {
		store, err := newRedisStorage(m.redis)
		if err != nil {
			log.Printf("[api] Redis limiter storage unavailable, using memory: %v", err)
		} else {
			m.limitStore = store
		}
	}
	if m.limitStore != nil {
		cfg.Storage = m.limitStore
	}
	return limiter.New(cfg)
}

// newRedisStorage connects the Fiber storage driver. The driver panics when
// Redis does not answer, so the panic is turned into an error.
func newRedisStorage(cfg config.RedisConfig) (store *redisstore.Storage, err error) {
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address %q: %w", cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis port %q: %w", portStr, err)
	}

	defer func() {
		if r := recover(); r != nil {
			store = nil
			err = fmt.Errorf("redis storage: %v", r)
		}
	}()
	return redisstore.New(redisstore.Config{
		Host:     host,
		Port:     port,
		Password: cfg.Password,
		Database: cfg.DB,
		PoolSize: 10,
	}), nil
}

// health aggregates the health of every registered module.
func (m *APIModule) health(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:  "healthy",
		Modules: make(map[string]ModuleHealth, len(m.deps.Checks)),
	}
	for _, check := range m.deps.Checks {
		h := check.Health(c.UserContext())
		resp.Modules[check.Name()] = ModuleHealth{
			Healthy: h.Healthy,
			Message: h.Message,
			Details: h.Details,
		}
		if !h.Healthy {
			resp.Status = "degraded"
		}
	}

	status := fiber.StatusOK
	if resp.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}

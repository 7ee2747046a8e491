package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/Noah-Sfez/whatsup/config"
	"github.com/Noah-Sfez/whatsup/modules/activity"
	"github.com/Noah-Sfez/whatsup/modules/api"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	"github.com/Noah-Sfez/whatsup/modules/broadcast"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/Noah-Sfez/whatsup/modules/gateway"
	"github.com/Noah-Sfez/whatsup/modules/presence"
	"github.com/Noah-Sfez/whatsup/modules/ratelimit"
	"github.com/Noah-Sfez/whatsup/modules/storage"
	"github.com/Noah-Sfez/whatsup/modules/uploads"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	log.Println("=== whatsup - real-time chat ===")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.DevSecret() {
		log.Println("WARNING: using the built-in JWT secret; set WHATSUP_JWT_SECRET in production")
	}

	policy, err := presence.ParsePolicy(cfg.Presence.Policy)
	if err != nil {
		log.Fatalf("Invalid presence policy: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	logLevel := mono.LogLevelInfo
	if cfg.Log.Level == "error" {
		logLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.Shutdown.Timeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	storageModule := storage.NewModule(cfg.Database)
	authModule := auth.NewModule(storageModule, auth.JWTConfig{
		SecretKey:            cfg.JWT.Secret,
		AccessTokenDuration:  cfg.JWT.AccessTTL,
		RefreshTokenDuration: cfg.JWT.RefreshTTL,
		Issuer:               cfg.JWT.Issuer,
	}, cfg.Store.Timeout)
	chatModule := chatmod.NewModule(storageModule, cfg.Store.Timeout, redisClient, logger.WithModule("chat"))
	presenceModule := presence.NewModule(storageModule, policy, cfg.Store.Timeout, redisClient, logger.WithModule("presence"))
	broadcastModule := broadcast.NewModule()
	rateLimitModule := ratelimit.NewModule(ratelimit.Config{
		EventsPerSecond: cfg.Gateway.EventsPerSecond,
		Burst:           cfg.Gateway.Burst,
		KeyPrefix:       ratelimit.DefaultConfig().KeyPrefix,
	}, redisClient)
	gatewayModule := gateway.NewModule(gateway.Deps{
		Auth:       authModule,
		Chat:       chatModule,
		Presence:   presenceModule,
		Broadcast:  broadcastModule,
		RateLimit:  rateLimitModule,
		SendBuffer: cfg.Gateway.SendBuffer,
	}, logger.WithModule("gateway"))
	activityModule := activity.NewModule(storageModule, cfg.Store.Timeout, logger.WithModule("activity"))
	uploadsModule := uploads.NewModule(cfg.NATS.URL, cfg.Uploads.Bucket, cfg.Uploads.MaxBytes, logger.WithModule("uploads"))
	apiModule := api.NewModule(cfg.HTTP, cfg.Redis, api.Deps{
		Gateway: gatewayModule,
		Uploads: uploadsModule,
		Checks: []api.HealthChecker{
			storageModule,
			authModule,
			chatModule,
			presenceModule,
			broadcastModule,
			rateLimitModule,
			gatewayModule,
			activityModule,
			uploadsModule,
		},
	})

	// Register modules with the framework.
	// Order: the store first, then the services built on it, then the
	// connection layer, then the surfaces.
	app.Register(storageModule)   // Relational store
	app.Register(authModule)      // Credential verifier + auth services
	app.Register(chatModule)      // Membership gate, message dispatch, room CRUD (emits events)
	app.Register(presenceModule)  // Presence tracker (emits PresenceChanged)
	app.Register(broadcastModule) // Room registry
	app.Register(rateLimitModule) // Per-user event limiter
	app.Register(gatewayModule)   // Connection sessions + wire protocol
	app.Register(activityModule)  // Event consumer
	app.Register(uploadsModule)   // Image object storage
	app.Register(apiModule)       // HTTP + WebSocket surface (depends on auth, chat)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Shutdown.Timeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				err := app.Stop(ctx)
				if redisClient != nil {
					if cerr := redisClient.Close(); cerr != nil {
						log.Printf("Failed to close Redis client: %v", cerr)
					}
				}
				return err
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("Database: %s", cfg.Database.Driver)
	log.Printf("Presence policy: %s", cfg.Presence.Policy)
	if cfg.Redis.Enabled() {
		log.Printf("Redis: %s", cfg.Redis.Addr)
	} else {
		log.Println("Redis: disabled (in-process limiter, no presence mirror)")
	}
	if cfg.NATS.URL != "" {
		log.Printf("Image uploads: NATS %s, bucket %s", cfg.NATS.URL, cfg.Uploads.Bucket)
	} else {
		log.Println("Image uploads: disabled (set WHATSUP_NATS_URL)")
	}
	log.Println("")
	log.Printf("Endpoints (http://localhost:%d):", cfg.HTTP.Port)
	log.Println("  POST /api/v1/auth/register | /login | /refresh")
	log.Println("  GET  /api/v1/users, /users/search?email=, POST /users/check")
	log.Println("  GET|POST /api/v1/conversations, /conversations/:id/messages")
	log.Println("  GET|POST /api/v1/groups, POST /groups/:id/join, /groups/:id/messages")
	log.Println("  POST /api/v1/upload/image, GET /uploads/images/:name")
	log.Println("  WS   /ws")
	log.Println("  GET  /health, /metrics")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}

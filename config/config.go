package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures the service runtime parameters.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Store    StoreConfig    `mapstructure:"store"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Presence PresenceConfig `mapstructure:"presence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Uploads  UploadsConfig  `mapstructure:"uploads"`
	Log      LogConfig      `mapstructure:"log"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
}

// HTTPConfig configures the Fiber server.
type HTTPConfig struct {
	Port        int           `mapstructure:"port"`
	CORSOrigins string        `mapstructure:"cors_origins"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// StoreConfig bounds store calls.
type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// JWTConfig configures credential issuing and verification.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// PresenceConfig selects the offline policy.
type PresenceConfig struct {
	Policy string `mapstructure:"policy"`
}

// RedisConfig enables the Redis-backed features when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// GatewayConfig tunes the websocket gateway.
type GatewayConfig struct {
	SendBuffer      int     `mapstructure:"send_buffer"`
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// NATSConfig points at the NATS server backing the upload store.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// UploadsConfig configures image uploads.
type UploadsConfig struct {
	Bucket   string `mapstructure:"bucket"`
	MaxBytes int64  `mapstructure:"max_bytes"`
}

// LogConfig configures the application logger. Level is "info" or "error".
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	defaultPort        = 3001
	defaultCORSOrigins = "*"
	defaultRateLimit   = 120
	defaultRateWindow  = time.Minute
	defaultDriver      = "sqlite"
	defaultDSN         = "whatsup.db"
	defaultStoreTO     = 5 * time.Second
	defaultJWTSecret   = "dev-secret-change-me"
	defaultIssuer      = "whatsup"
	defaultAccessTTL   = 24 * time.Hour
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultPolicy      = "refcount"
	defaultSendBuffer  = 256
	defaultEventsRate  = 10
	defaultBurst       = 20
	defaultBucket      = "images"
	defaultMaxBytes    = 5 << 20
	defaultLogLevel    = "info"
	defaultShutdownTO  = 30 * time.Second
)

var durationKeys = []string{
	"http.rate_window",
	"store.timeout",
	"jwt.access_ttl",
	"jwt.refresh_ttl",
	"shutdown.timeout",
}

// Load reads configuration from the provided file path (if any), a local .env file
// and the environment. Environment variables are prefixed with WHATSUP_ and
// override file values.
func Load(path string) (Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("WHATSUP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http.port", defaultPort)
	v.SetDefault("http.cors_origins", defaultCORSOrigins)
	v.SetDefault("http.rate_limit", defaultRateLimit)
	v.SetDefault("http.rate_window", defaultRateWindow.String())
	v.SetDefault("database.driver", defaultDriver)
	v.SetDefault("database.dsn", defaultDSN)
	v.SetDefault("store.timeout", defaultStoreTO.String())
	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.issuer", defaultIssuer)
	v.SetDefault("jwt.access_ttl", defaultAccessTTL.String())
	v.SetDefault("jwt.refresh_ttl", defaultRefreshTTL.String())
	v.SetDefault("presence.policy", defaultPolicy)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("gateway.send_buffer", defaultSendBuffer)
	v.SetDefault("gateway.events_per_second", defaultEventsRate)
	v.SetDefault("gateway.burst", defaultBurst)
	v.SetDefault("nats.url", "")
	v.SetDefault("uploads.bucket", defaultBucket)
	v.SetDefault("uploads.max_bytes", defaultMaxBytes)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("shutdown.timeout", defaultShutdownTO.String())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	durations := map[string]*time.Duration{
		"http.rate_window": &cfg.HTTP.RateWindow,
		"store.timeout":    &cfg.Store.Timeout,
		"jwt.access_ttl":   &cfg.JWT.AccessTTL,
		"jwt.refresh_ttl":  &cfg.JWT.RefreshTTL,
		"shutdown.timeout": &cfg.Shutdown.Timeout,
	}
	for _, key := range durationKeys {
		dur, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		*durations[key] = dur
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Presence.Policy {
	case "refcount", "any_close":
	default:
		return fmt.Errorf("unsupported presence.policy %q", c.Presence.Policy)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be positive")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.Gateway.SendBuffer <= 0 {
		return fmt.Errorf("gateway.send_buffer must be positive")
	}
	switch c.Log.Level {
	case "info", "error":
	default:
		return fmt.Errorf("unsupported log.level %q", c.Log.Level)
	}
	return nil
}

// DevSecret reports whether the JWT secret is still the built-in default.
func (c Config) DevSecret() bool {
	return c.JWT.Secret == defaultJWTSecret
}

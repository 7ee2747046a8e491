package storage

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Noah-Sfez/whatsup/config"
	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/go-monolith/mono"
)

// StorageModule owns the relational store used by every other module.
type StorageModule struct {
	cfg   config.DatabaseConfig
	store chat.Store
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*StorageModule)(nil)
	_ mono.HealthCheckableModule = (*StorageModule)(nil)
)

// NewModule creates a StorageModule for the configured driver.
func NewModule(cfg config.DatabaseConfig) *StorageModule {
	return &StorageModule{cfg: cfg}
}

// NewModuleWithStore creates a StorageModule around an already opened store.
// This constructor enables dependency injection for testing.
func NewModuleWithStore(store chat.Store) *StorageModule {
	return &StorageModule{store: store, cfg: config.DatabaseConfig{Driver: "injected"}}
}

// Name returns the module name.
func (m *StorageModule) Name() string {
	return "storage"
}

// Store returns the opened store. It is nil before Start.
func (m *StorageModule) Store() chat.Store {
	return m.store
}

// Health pings the database.
func (m *StorageModule) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": m.cfg.Driver,
		},
	}
}

// Start opens the database and applies the schema.
func (m *StorageModule) Start(ctx context.Context) error {
	if m.store != nil {
		log.Println("[storage] Module started with injected store")
		return nil
	}

	switch m.cfg.Driver {
	case "postgres":
		log.Printf("[storage] Connecting to PostgreSQL...")
		store, err := OpenPostgres(ctx, m.cfg.DSN)
		if err != nil {
			return err
		}
		m.store = store
	case "sqlite":
		log.Printf("[storage] Connecting to SQLite database: %s", m.cfg.DSN)
		store, err := OpenSQLite(m.cfg.DSN, os.Getenv("DB_DEBUG") == "true")
		if err != nil {
			return err
		}
		m.store = store
	default:
		return fmt.Errorf("unsupported database driver %q", m.cfg.Driver)
	}

	log.Println("[storage] Module started successfully")
	return nil
}

// Stop closes the database connection.
func (m *StorageModule) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}

	log.Println("[storage] Closing database connection...")
	if err := m.store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("[storage] Database connection closed")
	return nil
}

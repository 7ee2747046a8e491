package storage

import (
	"context"
	"testing"

	"github.com/Noah-Sfez/whatsup/config"
)

func TestStorageModule_SQLiteLifecycle(t *testing.T) {
	m := NewModule(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	ctx := context.Background()

	if h := m.Health(ctx); h.Healthy {
		t.Error("Health() before Start should be unhealthy")
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.Store() == nil {
		t.Fatal("Store() is nil after Start")
	}
	if h := m.Health(ctx); !h.Healthy {
		t.Errorf("Health() = %+v, want healthy", h)
	}
	if err := m.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStorageModule_UnknownDriver(t *testing.T) {
	m := NewModule(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	if err := m.Start(context.Background()); err == nil {
		t.Error("Start() with unknown driver should fail")
	}
	if m.Name() != "storage" {
		t.Errorf("Name() = %q, want storage", m.Name())
	}
}

func TestStorageModule_InjectedStore(t *testing.T) {
	store := setupTestDB(t)
	m := NewModuleWithStore(store)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.Store() != store {
		t.Error("Store() should return the injected store")
	}
}

package uploads

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// bucketQuota bounds the whole image bucket.
const bucketQuota = 1 << 30

// UploadsModule provides image storage on NATS JetStream. It is disabled when
// no NATS URL is configured.
type UploadsModule struct {
	natsURL  string
	bucket   string
	maxBytes int64
	logger   types.Logger
	store    *JetStreamObjectStore
	service  *Service
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*UploadsModule)(nil)
	_ mono.HealthCheckableModule = (*UploadsModule)(nil)
)

// NewModule creates an uploads module.
func NewModule(natsURL, bucket string, maxBytes int64, logger types.Logger) *UploadsModule {
	if bucket == "" {
		bucket = "images"
	}
	return &UploadsModule{
		natsURL:  natsURL,
		bucket:   bucket,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *UploadsModule) Name() string {
	return "uploads"
}

// Enabled reports whether uploads are configured.
func (m *UploadsModule) Enabled() bool {
	return m.natsURL != ""
}

// Service returns the upload service. It is nil when uploads are disabled.
func (m *UploadsModule) Service() *Service {
	return m.service
}

// Start connects to NATS and opens the bucket.
func (m *UploadsModule) Start(ctx context.Context) error {
	if !m.Enabled() {
		m.logger.Info("Uploads module started (disabled: no NATS URL)")
		return nil
	}

	store, err := NewJetStreamObjectStore(m.natsURL, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	if err := store.Init(ctx, bucketQuota); err != nil {
		store.Close()
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	service, err := NewService(store, m.maxBytes, m.logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create upload service: %w", err)
	}
	m.store = store
	m.service = service

	m.logger.Info("Uploads module started", "nats", m.natsURL, "bucket", m.bucket, "maxBytes", service.MaxBytes())
	return nil
}

// Stop closes the NATS connection.
func (m *UploadsModule) Stop(_ context.Context) error {
	if m.store != nil {
		m.store.Close()
	}
	m.logger.Info("Uploads module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *UploadsModule) Health(_ context.Context) mono.HealthStatus {
	if !m.Enabled() {
		return mono.HealthStatus{Healthy: true, Message: "disabled"}
	}
	healthy := m.store != nil && m.store.IsConnected()
	message := "connected"
	if !healthy {
		message = "disconnected"
	}
	return mono.HealthStatus{
		Healthy: healthy,
		Message: message,
		Details: map[string]any{
			"bucket": m.bucket,
		},
	}
}

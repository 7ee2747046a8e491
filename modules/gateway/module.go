package gateway

import (
	"context"
	"fmt"

	"github.com/Noah-Sfez/whatsup/modules/auth"
	"github.com/Noah-Sfez/whatsup/modules/broadcast"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/Noah-Sfez/whatsup/modules/presence"
	"github.com/Noah-Sfez/whatsup/modules/ratelimit"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps are the modules the gateway is built from. Their services only exist
// after they have started, so they are resolved in Start.
type Deps struct {
	Auth       *auth.AuthModule
	Chat       *chatmod.ChatModule
	Presence   *presence.PresenceModule
	Broadcast  *broadcast.BroadcastModule
	RateLimit  *ratelimit.RateLimitModule // optional
	SendBuffer int
	Registerer prometheus.Registerer
}

// GatewayModule owns the websocket gateway.
type GatewayModule struct {
	deps    Deps
	logger  types.Logger
	gateway *Gateway
	cancel  context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*GatewayModule)(nil)
	_ mono.HealthCheckableModule = (*GatewayModule)(nil)
)

// NewModule creates a gateway module.
func NewModule(deps Deps, logger types.Logger) *GatewayModule {
	return &GatewayModule{deps: deps, logger: logger}
}

// Name returns the module name.
func (m *GatewayModule) Name() string {
	return "gateway"
}

// Gateway returns the gateway. It is nil before Start.
func (m *GatewayModule) Gateway() *Gateway {
	return m.gateway
}

// Start builds the gateway from the started dependency modules.
func (m *GatewayModule) Start(_ context.Context) error {
	d := m.deps
	if d.Auth == nil || d.Auth.Service() == nil {
		return fmt.Errorf("gateway: auth service not available")
	}
	if d.Chat == nil || d.Chat.Service() == nil {
		return fmt.Errorf("gateway: chat service not available")
	}
	if d.Presence == nil || d.Presence.Tracker() == nil {
		return fmt.Errorf("gateway: presence tracker not available")
	}
	if d.Broadcast == nil {
		return fmt.Errorf("gateway: broadcast hub not available")
	}

	opts := Options{
		Hub:        d.Broadcast.GetHub(),
		Verifier:   d.Auth.Service(),
		Chat:       d.Chat.Service(),
		Presence:   d.Presence.Tracker(),
		SendBuffer: d.SendBuffer,
		Logger:     m.logger,
		Registerer: d.Registerer,
	}
	if d.RateLimit != nil && d.RateLimit.Limiter() != nil {
		opts.Limiter = d.RateLimit.Limiter()
	}

	ctx, cancel := context.WithCancel(context.Background())
	gw, err := New(ctx, opts)
	if err != nil {
		cancel()
		return err
	}
	m.gateway = gw
	m.cancel = cancel

	m.logger.Info("Gateway module started", "sendBuffer", gw.sendBuffer, "rateLimited", opts.Limiter != nil)
	return nil
}

// Stop cancels the operations of live connections. The transports are closed
// by the broadcast module.
func (m *GatewayModule) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("Gateway module stopped")
	return nil
}

// Health returns the health status.
func (m *GatewayModule) Health(_ context.Context) mono.HealthStatus {
	if m.gateway == nil {
		return mono.HealthStatus{Healthy: false, Message: "gateway not initialized"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": m.gateway.ConnectionCount(),
		},
	}
}

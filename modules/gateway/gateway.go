// Package gateway runs the websocket connection protocol: authentication,
// room joins, message dispatch and typing notices.
package gateway

import (
	"context"
	"errors"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	"github.com/Noah-Sfez/whatsup/modules/broadcast"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/Noah-Sfez/whatsup/modules/ratelimit"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Verifier checks access tokens.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (*auth.Identity, error)
}

// Messenger authorizes room access and dispatches messages.
type Messenger interface {
	Authorize(ctx context.Context, room chat.RoomRef, userID string) error
	Send(ctx context.Context, in chatmod.SendInput, deliver chatmod.DeliverFunc) (*chat.Message, error)
}

// Presence tracks the live connections of users.
type Presence interface {
	Connect(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
}

// Conn is a live websocket connection.
type Conn interface {
	broadcast.Transport
	ReadMessage() (messageType int, p []byte, err error)
}

// Options wires a Gateway.
type Options struct {
	Hub        *broadcast.Hub
	Verifier   Verifier
	Chat       Messenger
	Presence   Presence
	Limiter    ratelimit.Limiter // optional
	SendBuffer int
	Logger     types.Logger
	Registerer prometheus.Registerer
}

// Gateway serves websocket connections.
type Gateway struct {
	ctx        context.Context
	hub        *broadcast.Hub
	verifier   Verifier
	chat       Messenger
	presence   Presence
	limiter    ratelimit.Limiter
	sendBuffer int
	logger     types.Logger
	metrics    *gatewayMetrics
}

// New creates a gateway. ctx bounds every operation started by a connection.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	switch {
	case opts.Hub == nil:
		return nil, errors.New("gateway: hub is required")
	case opts.Verifier == nil:
		return nil, errors.New("gateway: verifier is required")
	case opts.Chat == nil:
		return nil, errors.New("gateway: chat service is required")
	case opts.Presence == nil:
		return nil, errors.New("gateway: presence tracker is required")
	case opts.Logger == nil:
		return nil, errors.New("gateway: logger is required")
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = broadcast.DefaultSendBuffer
	}
	return &Gateway{
		ctx:        ctx,
		hub:        opts.Hub,
		verifier:   opts.Verifier,
		chat:       opts.Chat,
		presence:   opts.Presence,
		limiter:    opts.Limiter,
		sendBuffer: opts.SendBuffer,
		logger:     opts.Logger,
		metrics:    newGatewayMetrics(opts.Registerer),
	}, nil
}

// Serve runs the read loop of conn until it fails. It never closes conn; the
// caller owns the transport.
func (g *Gateway) Serve(conn Conn) {
	s := g.newSession(conn)
	if err := g.hub.Register(s.client); err != nil {
		g.logger.Warn("Rejecting connection", "connID", s.id, "error", err)
		return
	}
	g.metrics.incConnection()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.client.WritePump()
	}()

	g.logger.Debug("WebSocket connected", "connID", s.id)
	defer func() {
		s.close()
		s.client.Close()
		<-pumpDone
		g.metrics.decConnection()
		g.logger.Debug("WebSocket disconnected", "connID", s.id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				g.logger.Warn("WebSocket read failed", "connID", s.id, "error", err)
			}
			return
		}
		s.handle(data)
	}
}

func (g *Gateway) newSession(conn Conn) *session {
	id := uuid.New().String()
	return &session{
		id:     id,
		gw:     g,
		client: broadcast.NewClient(id, conn, g.sendBuffer),
		logger: g.logger.With("connID", id),
	}
}

// ConnectionCount returns the number of registered connections.
func (g *Gateway) ConnectionCount() int {
	return g.hub.ClientCount()
}

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/modules/auth"
	"github.com/Noah-Sfez/whatsup/modules/broadcast"
	chatmod "github.com/Noah-Sfez/whatsup/modules/chat"
	"github.com/go-monolith/mono/pkg/types"
)

const msgRateLimited = "rate limit exceeded"

// session is the state of one connection. Its handlers run on the read loop
// only, so the fields need no locking.
type session struct {
	id       string
	gw       *Gateway
	client   *broadcast.Client
	logger   types.Logger
	identity *auth.Identity
}

func (s *session) authenticated() bool {
	return s.identity != nil
}

// handle dispatches one inbound frame. Every failure is reported to this
// connection only.
func (s *session) handle(data []byte) {
	var frame Frame
	if err := decodeStrict(data, &frame); err != nil {
		s.fail(chat.Validationf("invalid frame"))
		return
	}

	if requiresIdentity(frame.Event) && !s.authenticated() {
		s.fail(chat.Forbidden("Not authenticated"))
		return
	}

	if !s.allow() {
		s.gw.metrics.recordRateLimited()
		s.gw.metrics.recordError("rate_limited")
		s.emit(EventError, msgRateLimited)
		return
	}

	ctx := s.gw.ctx
	start := time.Now()
	switch frame.Event {
	case EventAuthenticate:
		s.authenticate(ctx, frame.Data)
	case EventJoinConversation:
		var p JoinConversationPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			s.fail(err)
			break
		}
		s.join(ctx, chat.ConversationRoom(p.ConversationID), EventJoinedConversation)
	case EventJoinGroup:
		var p JoinGroupPayload
		if err := decodePayload(frame.Event, frame.Data, &p); err != nil {
			s.fail(err)
			break
		}
		s.join(ctx, chat.GroupRoom(p.GroupID), EventJoinedGroup)
	case EventSendMessage:
		s.sendMessage(ctx, frame.Data)
	case EventTyping:
		s.typing(frame.Event, frame.Data, EventUserTyping)
	case EventStopTyping:
		s.typing(frame.Event, frame.Data, EventUserStopTyping)
	default:
		s.fail(chat.Validationf("unknown event %q", frame.Event))
		return
	}
	s.gw.metrics.observeLatency(frame.Event, time.Since(start))
}

// requiresIdentity reports whether event is refused before authentication.
func requiresIdentity(event string) bool {
	switch event {
	case EventJoinConversation, EventJoinGroup, EventSendMessage, EventTyping, EventStopTyping:
		return true
	}
	return false
}

// allow applies the per-user event rate. Unauthenticated connections are
// limited per connection. A failing limiter lets the event through.
func (s *session) allow() bool {
	if s.gw.limiter == nil {
		return true
	}
	key := "conn:" + s.id
	if s.authenticated() {
		key = "user:" + s.identity.UserID
	}
	res, err := s.gw.limiter.Allow(s.gw.ctx, key)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable", "error", err)
		return true
	}
	return res.Allowed
}

func (s *session) authenticate(ctx context.Context, data []byte) {
	var p AuthenticatePayload
	if err := decodePayload(EventAuthenticate, data, &p); err != nil {
		s.gw.metrics.recordAuth("failure")
		s.emit(EventAuthError, err.Error())
		return
	}
	if p.Token == "" {
		s.gw.metrics.recordAuth("failure")
		s.emit(EventAuthError, "Authentication token is required")
		return
	}

	id, err := s.gw.verifier.VerifyToken(ctx, p.Token)
	if err != nil {
		s.gw.metrics.recordAuth("failure")
		msg := "Authentication failed"
		if errors.Is(err, chat.ErrAuth) {
			msg = err.Error()
		}
		s.emit(EventAuthError, msg)
		return
	}

	switch {
	case s.authenticated() && s.identity.UserID == id.UserID:
		s.identity = id
	case s.authenticated():
		s.release()
		s.adopt(ctx, id)
	default:
		s.adopt(ctx, id)
	}
	s.gw.metrics.recordAuth("success")
	s.emit(EventAuthenticated, AuthenticatedPayload{UserID: id.UserID, Username: id.Username})
}

// adopt binds the connection to id and marks the user online. A presence
// failure does not undo the authentication.
func (s *session) adopt(ctx context.Context, id *auth.Identity) {
	s.identity = id
	s.logger = s.gw.logger.With("connID", s.id, "userID", id.UserID)
	if err := s.gw.presence.Connect(ctx, id.UserID); err != nil {
		s.logger.Warn("Failed to mark user online", "error", err)
	}
	s.logger.Info("Connection authenticated", "username", id.Username)
}

// release drops the rooms and the presence held for the current identity.
func (s *session) release() {
	if !s.authenticated() {
		return
	}
	s.gw.hub.LeaveAll(s.id)
	ctx := context.WithoutCancel(s.gw.ctx)
	if err := s.gw.presence.Disconnect(ctx, s.identity.UserID); err != nil {
		s.logger.Warn("Failed to mark user offline", "error", err)
	}
	s.identity = nil
}

// close runs when the transport is gone.
func (s *session) close() {
	s.gw.hub.Unregister(s.id)
	s.release()
}

func (s *session) join(ctx context.Context, room chat.RoomRef, ack string) {
	if err := room.Validate(); err != nil {
		s.fail(err)
		return
	}
	if err := s.gw.chat.Authorize(ctx, room, s.identity.UserID); err != nil {
		s.fail(err)
		return
	}
	added, err := s.gw.hub.Join(s.id, room.Key())
	if err != nil {
		s.fail(err)
		return
	}
	if added {
		s.logger.Debug("Joined room", "room", room.Key())
	}
	s.emit(ack, room.ID)
}

func (s *session) sendMessage(ctx context.Context, data []byte) {
	var p SendMessagePayload
	if err := decodePayload(EventSendMessage, data, &p); err != nil {
		s.fail(err)
		return
	}
	room, err := p.Room()
	if err != nil {
		s.fail(err)
		return
	}

	exclude := ""
	if p.SkipSave {
		exclude = s.id
	}
	deliver := func(msg *chat.Message) {
		out, err := encodeFrame(EventNewMessage, msg)
		if err != nil {
			s.logger.Error("Failed to encode message", "messageID", msg.ID, "error", err)
			return
		}
		s.gw.metrics.recordDeliveries(s.gw.hub.Broadcast(room.Key(), out, exclude))
	}

	_, err = s.gw.chat.Send(ctx, chatmod.SendInput{
		SenderID: s.identity.UserID,
		Room:     room,
		Payload:  p.Payload(),
		SkipSave: p.SkipSave,
	}, deliver)
	if err != nil {
		s.fail(err)
	}
}

func (s *session) typing(event string, data []byte, notice string) {
	var p TypingPayload
	if err := decodePayload(event, data, &p); err != nil {
		s.fail(err)
		return
	}
	room, err := p.Room()
	if err != nil {
		s.fail(err)
		return
	}

	username := ""
	if notice == EventUserTyping {
		username = s.identity.Username
	}
	out, err := encodeFrame(notice, newTypingNotice(s.identity.UserID, username, room))
	if err != nil {
		s.logger.Error("Failed to encode typing notice", "error", err)
		return
	}
	s.gw.metrics.recordDeliveries(s.gw.hub.Broadcast(room.Key(), out, s.id))
}

// fail reports err to this connection as an error event.
func (s *session) fail(err error) {
	fault := chat.FaultFrom(err)
	if fault.Kind == "store" {
		s.logger.Warn("Event failed", "error", err)
	}
	s.gw.metrics.recordError(fault.Kind)
	s.emit(EventError, fault.Message)
}

func (s *session) emit(event string, data any) {
	out, err := encodeFrame(event, data)
	if err != nil {
		s.logger.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	s.client.Send(out)
}

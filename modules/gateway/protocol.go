package gateway

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/Noah-Sfez/whatsup/domain/chat"
)

// Client to server events.
const (
	EventAuthenticate     = "authenticate"
	EventJoinConversation = "join_conversation"
	EventJoinGroup        = "join_group"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
)

// Server to client events.
const (
	EventAuthenticated      = "authenticated"
	EventAuthError          = "auth_error"
	EventJoinedConversation = "joined_conversation"
	EventJoinedGroup        = "joined_group"
	EventNewMessage         = "new_message"
	EventUserTyping         = "user_typing"
	EventUserStopTyping     = "user_stop_typing"
	EventError              = "error"
)

// Frame is the envelope of every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AuthenticatePayload carries the access token.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// JoinConversationPayload names the conversation to join.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// JoinGroupPayload names the group to join.
type JoinGroupPayload struct {
	GroupID string `json:"groupId"`
}

// RoomFields are the accepted ways of addressing a room.
type RoomFields struct {
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	RoomID         string `json:"roomId,omitempty"`
	RoomType       string `json:"roomType,omitempty"`
}

// Room resolves the fields into a room reference.
func (f RoomFields) Room() (chat.RoomRef, error) {
	return chat.ResolveRoom(f.ConversationID, f.GroupID, f.RoomID, f.RoomType)
}

// SendMessagePayload is a text or image message. SkipSave broadcasts a message
// that was already stored through the HTTP API.
type SendMessagePayload struct {
	RoomFields
	MessageType string `json:"messageType,omitempty"`
	Content     string `json:"content,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	ImageName   string `json:"imageName,omitempty"`
	ImageSize   int64  `json:"imageSize,omitempty"`
	SkipSave    bool   `json:"skipSave,omitempty"`
}

// Payload converts the wire fields into a message payload.
func (p SendMessagePayload) Payload() chat.Payload {
	return chat.Payload{
		Type:      chat.MessageType(p.MessageType),
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		ImageName: p.ImageName,
		ImageSize: p.ImageSize,
	}
}

// TypingPayload names the room the user is typing in.
type TypingPayload struct {
	RoomFields
}

// AuthenticatedPayload acknowledges a successful authentication.
type AuthenticatedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// TypingNotice is relayed to the other connections of a room.
type TypingNotice struct {
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
}

func newTypingNotice(userID, username string, room chat.RoomRef) TypingNotice {
	n := TypingNotice{UserID: userID, Username: username}
	if room.Kind == chat.RoomConversation {
		n.ConversationID = room.ID
	} else {
		n.GroupID = room.ID
	}
	return n
}

// decodeStrict decodes exactly one JSON value into v and rejects unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return chat.Validationf("unexpected data after payload")
	}
	return nil
}

// decodePayload decodes the data of an event into v.
func decodePayload(event string, data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return chat.Validationf("%s: payload is required", event)
	}
	if err := decodeStrict(data, v); err != nil {
		return chat.Validationf("%s: invalid payload: %v", event, err)
	}
	return nil
}

// encodeFrame builds an outgoing frame.
func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

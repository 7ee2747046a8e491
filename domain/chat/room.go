package chat

// RoomKind discriminates the two kinds of room.
type RoomKind string

const (
	RoomConversation RoomKind = "conversation"
	RoomGroup        RoomKind = "group"
)

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	return k == RoomConversation || k == RoomGroup
}

// RoomRef addresses a conversation or a group.
type RoomRef struct {
	Kind RoomKind `json:"kind"`
	ID   string   `json:"id"`
}

// ConversationRoom returns a reference to a conversation.
func ConversationRoom(id string) RoomRef {
	return RoomRef{Kind: RoomConversation, ID: id}
}

// GroupRoom returns a reference to a group.
func GroupRoom(id string) RoomRef {
	return RoomRef{Kind: RoomGroup, ID: id}
}

// Key is the registry key of the room. Conversations and groups never collide.
func (r RoomRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// IsZero reports whether r is unset.
func (r RoomRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Validate checks that the reference names exactly one known room.
func (r RoomRef) Validate() error {
	if !r.Kind.Valid() {
		return Validationf("unknown room kind %q", r.Kind)
	}
	if r.ID == "" {
		return Validationf("%s id is required", r.Kind)
	}
	return nil
}

// ResolveRoom builds a reference from the optional identifiers a client may send.
// Exactly one addressing form must be used: conversationID, groupID, or roomID with roomType.
func ResolveRoom(conversationID, groupID, roomID, roomType string) (RoomRef, error) {
	set := 0
	for _, v := range []string{conversationID, groupID, roomID} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return RoomRef{}, Validationf("a conversation or group id is required")
	case set > 1:
		return RoomRef{}, Validationf("exactly one of conversationId, groupId or roomId must be set")
	case conversationID != "":
		if roomType != "" {
			return RoomRef{}, Validationf("roomType is only valid with roomId")
		}
		return ConversationRoom(conversationID), nil
	case groupID != "":
		if roomType != "" {
			return RoomRef{}, Validationf("roomType is only valid with roomId")
		}
		return GroupRoom(groupID), nil
	}

	kind := RoomKind(roomType)
	if roomType == "" {
		return RoomRef{}, Validationf("roomType is required with roomId")
	}
	if !kind.Valid() {
		return RoomRef{}, Validationf("unknown roomType %q", roomType)
	}
	return RoomRef{Kind: kind, ID: roomID}, nil
}

package chat

import (
	"errors"
	"testing"
)

func TestResolveRoom(t *testing.T) {
	tests := []struct {
		name           string
		conversationID string
		groupID        string
		roomID         string
		roomType       string
		want           RoomRef
		wantErr        bool
	}{
		{name: "conversation", conversationID: "c1", want: ConversationRoom("c1")},
		{name: "group", groupID: "g1", want: GroupRoom("g1")},
		{name: "room id with type", roomID: "g2", roomType: "group", want: GroupRoom("g2")},
		{name: "room id conversation", roomID: "c2", roomType: "conversation", want: ConversationRoom("c2")},
		{name: "nothing", wantErr: true},
		{name: "both ids", conversationID: "c1", groupID: "g1", wantErr: true},
		{name: "conversation and room id", conversationID: "c1", roomID: "r1", roomType: "group", wantErr: true},
		{name: "room id without type", roomID: "r1", wantErr: true},
		{name: "unknown type", roomID: "r1", roomType: "channel", wantErr: true},
		{name: "type with conversation id", conversationID: "c1", roomType: "group", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRoom(tt.conversationID, tt.groupID, tt.roomID, tt.roomType)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("ResolveRoom() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRoom() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveRoom() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoomRef_Key(t *testing.T) {
	c := ConversationRoom("x")
	g := GroupRoom("x")
	if c.Key() == g.Key() {
		t.Errorf("Key() collision between %v and %v", c, g)
	}
	if c.Key() != "conversation:x" {
		t.Errorf("Key() = %q, want %q", c.Key(), "conversation:x")
	}
}

func TestRoomRef_Validate(t *testing.T) {
	if err := GroupRoom("g").Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (RoomRef{Kind: RoomGroup}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() = %v, want validation error", err)
	}
	if err := (RoomRef{Kind: "x", ID: "1"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() = %v, want validation error", err)
	}
}

func TestMessage_Room(t *testing.T) {
	id := "c1"
	msg := &Message{ConversationID: &id}
	if got := msg.Room(); got != ConversationRoom("c1") {
		t.Errorf("Room() = %v, want %v", got, ConversationRoom("c1"))
	}
	if got := (&Message{}).Room(); !got.IsZero() {
		t.Errorf("Room() = %v, want zero", got)
	}
}

package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestPayload_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{name: "text", payload: TextPayload("hi")},
		{name: "default type", payload: Payload{Content: "hello"}},
		{name: "empty text", payload: TextPayload(""), wantErr: true},
		{name: "whitespace text", payload: TextPayload("  \n\t "), wantErr: true},
		{name: "too long", payload: TextPayload(strings.Repeat("a", MaxMessageLength+1)), wantErr: true},
		{name: "max length", payload: TextPayload(strings.Repeat("é", MaxMessageLength))},
		{name: "invalid utf8", payload: TextPayload("\xff\xfe"), wantErr: true},
		{name: "text with image fields", payload: Payload{Type: MessageTypeText, Content: "x", ImageURL: "/a.jpg"}, wantErr: true},
		{name: "image without caption", payload: ImagePayload("/uploads/images/a", "a.png", 10, "")},
		{name: "image with caption", payload: ImagePayload("/uploads/images/a", "a.png", 10, "look")},
		{name: "image missing url", payload: ImagePayload("", "a.png", 10, ""), wantErr: true},
		{name: "image missing name", payload: ImagePayload("/u", "", 10, ""), wantErr: true},
		{name: "image zero size", payload: ImagePayload("/u", "a.png", 0, ""), wantErr: true},
		{name: "unsupported type", payload: Payload{Type: "video", Content: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.payload.Normalize()
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("Normalize() error = %v, want validation error", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Normalize() unexpected error: %v", err)
			}
		})
	}
}

func TestPayload_NormalizeTrims(t *testing.T) {
	p, err := TextPayload("  hi  ").Normalize()
	if err != nil {
		t.Fatalf("Normalize() unexpected error: %v", err)
	}
	if p.Content != "hi" {
		t.Errorf("Content = %q, want %q", p.Content, "hi")
	}
	if p.Type != MessageTypeText {
		t.Errorf("Type = %q, want %q", p.Type, MessageTypeText)
	}
}

func TestPayload_Apply(t *testing.T) {
	var msg Message
	ImagePayload("/u/a", "a.png", 42, "cap").Apply(&msg)
	if msg.MessageType != MessageTypeImage || msg.Content != "cap" {
		t.Errorf("Apply() = %+v", msg)
	}
	if msg.ImageURL == nil || *msg.ImageURL != "/u/a" || msg.ImageSize == nil || *msg.ImageSize != 42 {
		t.Errorf("Apply() image fields = %v %v", msg.ImageURL, msg.ImageSize)
	}

	TextPayload("hi").Apply(&msg)
	if msg.ImageURL != nil || msg.ImageName != nil || msg.ImageSize != nil {
		t.Error("Apply() text payload left image fields set")
	}
}

func TestValidateUsername(t *testing.T) {
	if err := ValidateUsername("alice"); err != nil {
		t.Errorf("ValidateUsername() = %v, want nil", err)
	}
	if err := ValidateUsername(" "); !errors.Is(err, ErrValidation) {
		t.Errorf("ValidateUsername() = %v, want validation error", err)
	}
	if err := ValidateUsername(strings.Repeat("a", MaxUsernameLength+1)); !errors.Is(err, ErrValidation) {
		t.Errorf("ValidateUsername() = %v, want validation error", err)
	}
}

func TestValidateRoomName(t *testing.T) {
	if err := ValidateRoomName("general"); err != nil {
		t.Errorf("ValidateRoomName() = %v, want nil", err)
	}
	if err := ValidateRoomName(""); !errors.Is(err, ErrValidation) {
		t.Errorf("ValidateRoomName() = %v, want validation error", err)
	}
}

package chat

import (
	"strings"
	"unicode/utf8"
)

// Validation limits.
const (
	MaxMessageLength  = 5000
	MaxUsernameLength = 50
	MaxRoomNameLength = 100
	MaxImageNameLen   = 255
)

// Payload is the content of a message: text, or an image with an optional caption.
type Payload struct {
	Type      MessageType
	Content   string
	ImageURL  string
	ImageName string
	ImageSize int64
}

// TextPayload returns a text payload.
func TextPayload(content string) Payload {
	return Payload{Type: MessageTypeText, Content: content}
}

// ImagePayload returns an image payload.
func ImagePayload(url, name string, size int64, caption string) Payload {
	return Payload{Type: MessageTypeImage, Content: caption, ImageURL: url, ImageName: name, ImageSize: size}
}

// Normalize validates the payload and returns its canonical form. An empty type
// means text.
func (p Payload) Normalize() (Payload, error) {
	if p.Type == "" {
		p.Type = MessageTypeText
	}
	p.Content = strings.TrimSpace(p.Content)
	if !utf8.ValidString(p.Content) {
		return Payload{}, Validationf("message contains invalid characters")
	}
	if utf8.RuneCountInString(p.Content) > MaxMessageLength {
		return Payload{}, Validationf("message exceeds %d characters", MaxMessageLength)
	}

	switch p.Type {
	case MessageTypeText:
		if p.Content == "" {
			return Payload{}, Validationf("message content cannot be empty")
		}
		if p.ImageURL != "" || p.ImageName != "" || p.ImageSize != 0 {
			return Payload{}, Validationf("text messages cannot carry image fields")
		}
	case MessageTypeImage:
		p.ImageURL = strings.TrimSpace(p.ImageURL)
		p.ImageName = strings.TrimSpace(p.ImageName)
		if p.ImageURL == "" {
			return Payload{}, Validationf("image url is required")
		}
		if p.ImageName == "" {
			return Payload{}, Validationf("image name is required")
		}
		if len(p.ImageName) > MaxImageNameLen {
			return Payload{}, Validationf("image name exceeds %d bytes", MaxImageNameLen)
		}
		if p.ImageSize <= 0 {
			return Payload{}, Validationf("image size must be positive")
		}
	default:
		return Payload{}, Validationf("unsupported message type %q", p.Type)
	}
	return p, nil
}

// ValidateUsername checks a display name.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return Validationf("username cannot be empty")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return Validationf("username exceeds %d characters", MaxUsernameLength)
	}
	if !utf8.ValidString(username) {
		return Validationf("username contains invalid characters")
	}
	return nil
}

// ValidateRoomName checks a conversation or group name.
func ValidateRoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Validationf("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return Validationf("name exceeds %d characters", MaxRoomNameLength)
	}
	if !utf8.ValidString(name) {
		return Validationf("name contains invalid characters")
	}
	return nil
}

// Apply copies the payload onto msg.
func (p Payload) Apply(msg *Message) {
	msg.MessageType = p.Type
	msg.Content = p.Content
	msg.ImageURL, msg.ImageName, msg.ImageSize = nil, nil, nil
	if p.Type == MessageTypeImage {
		url, name, size := p.ImageURL, p.ImageName, p.ImageSize
		msg.ImageURL = &url
		msg.ImageName = &name
		msg.ImageSize = &size
	}
}

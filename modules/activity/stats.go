package activity

import (
	"sync"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Messages      int64     `json:"messages"`
	ImageMessages int64     `json:"image_messages"`
	Conversations int64     `json:"conversations"`
	Groups        int64     `json:"groups"`
	GroupJoins    int64     `json:"group_joins"`
	OnlineUsers   int64     `json:"online_users"`
	TouchFailures int64     `json:"touch_failures"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// Stats aggregates activity counters.
type Stats struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStats creates empty counters.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) recordMessage(event events.MessageSentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Messages++
	if event.MessageType == string(chat.MessageTypeImage) {
		s.snap.ImageMessages++
	}
	if event.Timestamp.After(s.snap.LastMessageAt) {
		s.snap.LastMessageAt = event.Timestamp
	}
}

func (s *Stats) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TouchFailures++
}

func (s *Stats) recordConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Conversations++
}

func (s *Stats) recordGroup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Groups++
}

func (s *Stats) recordJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.GroupJoins++
}

// recordPresence tracks users going online and offline. The count never drops
// below zero.
func (s *Stats) recordPresence(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.snap.OnlineUsers++
	} else if s.snap.OnlineUsers > 0 {
		s.snap.OnlineUsers--
	}
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

package chat

import (
	"sync"
	"time"
)

// roomSequencer serializes append and delivery per room and hands out
// per-room timestamps that never go backwards. Entries live as long as the
// process; the number of rooms is bounded by the store.
type roomSequencer struct {
	mu    sync.Mutex
	rooms map[string]*roomSlot
	now   func() time.Time
}

type roomSlot struct {
	mu   sync.Mutex
	last time.Time
}

func newRoomSequencer() *roomSequencer {
	return &roomSequencer{
		rooms: make(map[string]*roomSlot),
		now:   time.Now,
	}
}

// lock acquires the room slot. The caller must call unlock on the result.
func (s *roomSequencer) lock(key string) *roomSlot {
	s.mu.Lock()
	slot, ok := s.rooms[key]
	if !ok {
		slot = &roomSlot{}
		s.rooms[key] = slot
	}
	s.mu.Unlock()

	slot.mu.Lock()
	return slot
}

// stamp returns the next timestamp for the locked slot. Precision is
// microseconds so both SQLite and Postgres keep it intact.
func (s *roomSequencer) stamp(slot *roomSlot) time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if t.Before(slot.last) {
		t = slot.last
	}
	return t
}

// commit records t as the latest timestamp used in the slot.
func (slot *roomSlot) commit(t time.Time) {
	if t.After(slot.last) {
		slot.last = t
	}
}

func (slot *roomSlot) unlock() {
	slot.mu.Unlock()
}

// Package presence keeps each user's online flag in step with their live
// connections.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/Noah-Sfez/whatsup/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Policy decides when a user goes offline.
type Policy string

const (
	// PolicyRefCount marks a user offline when their last connection closes.
	PolicyRefCount Policy = "refcount"
	// PolicyAnyClose marks a user offline whenever any of their connections closes.
	PolicyAnyClose Policy = "any_close"
)

// OnlineSetKey is the Redis set mirroring the online users.
const OnlineSetKey = "whatsup:presence:online"

const defaultStoreTimeout = 5 * time.Second

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyRefCount, PolicyAnyClose:
		return Policy(s), nil
	case "":
		return PolicyRefCount, nil
	default:
		return "", fmt.Errorf("unknown presence policy %q", s)
	}
}

type userPresence struct {
	mu     sync.Mutex
	conns  int  // guarded by mu
	online bool // last flag written to the store, guarded by mu
	refs   int  // guarded by Tracker.mu
}

// Tracker counts live connections per user and writes the online flag. The
// per-user lock is held across the count change and the store write, so
// writes for one user are applied in order.
type Tracker struct {
	users   chat.UserRepository
	policy  Policy
	timeout time.Duration
	logger  types.Logger
	bus     mono.EventBus
	mirror  *redis.Client

	mu      sync.Mutex
	entries map[string]*userPresence
}

// NewTracker creates a tracker.
func NewTracker(users chat.UserRepository, policy Policy, timeout time.Duration, logger types.Logger) *Tracker {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if policy == "" {
		policy = PolicyRefCount
	}
	return &Tracker{
		users:   users,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
		entries: make(map[string]*userPresence),
	}
}

// SetEventBus enables PresenceChanged events.
func (t *Tracker) SetEventBus(bus mono.EventBus) {
	t.bus = bus
}

// SetMirror mirrors the online set into Redis.
func (t *Tracker) SetMirror(client *redis.Client) {
	t.mirror = client
}

// Policy returns the active policy.
func (t *Tracker) Policy() Policy {
	return t.policy
}

func (t *Tracker) acquire(userID string) *userPresence {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	if !ok {
		e = &userPresence{}
		t.entries[userID] = e
	}
	e.refs++
	return e
}

// release must be called with e.mu held. An entry whose offline write failed
// is kept so the flag can still be reconciled.
func (t *Tracker) release(userID string, e *userPresence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.conns == 0 && !e.online {
		delete(t.entries, userID)
	}
}

// Connect records a new authenticated connection of userID and marks the user
// online.
func (t *Tracker) Connect(ctx context.Context, userID string) error {
	e := t.acquire(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	defer t.release(userID, e)

	e.conns++
	if t.policy == PolicyAnyClose {
		return t.apply(ctx, userID, e, true)
	}
	return t.reconcile(ctx, userID, e)
}

// Disconnect records the end of one connection of userID. Depending on the
// policy the user goes offline now or only when no connection is left.
func (t *Tracker) Disconnect(ctx context.Context, userID string) error {
	e := t.acquire(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	defer t.release(userID, e)

	if e.conns == 0 && t.policy == PolicyAnyClose {
		return nil
	}
	if e.conns > 0 {
		e.conns--
	}
	if t.policy == PolicyAnyClose {
		return t.apply(ctx, userID, e, false)
	}
	return t.reconcile(ctx, userID, e)
}

// Connections returns the number of live connections of userID.
func (t *Tracker) Connections(userID string) int {
	e := t.acquire(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	defer t.release(userID, e)
	return e.conns
}

// reconcile writes the refcount flag when it differs from the last one
// written. A failed write is retried by the next Connect or Disconnect.
// It must be called with e.mu held.
func (t *Tracker) reconcile(ctx context.Context, userID string, e *userPresence) error {
	want := e.conns > 0
	if want == e.online {
		return nil
	}
	return t.apply(ctx, userID, e, want)
}

// apply must be called with e.mu held.
func (t *Tracker) apply(ctx context.Context, userID string, e *userPresence, online bool) error {
	if err := t.write(ctx, userID, online); err != nil {
		return err
	}
	e.online = online
	return nil
}

func (t *Tracker) write(ctx context.Context, userID string, online bool) error {
	storeCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.users.SetOnline(storeCtx, userID, online); err != nil {
		return chat.StoreFailure("set presence", err)
	}

	if t.mirror != nil {
		var err error
		if online {
			err = t.mirror.SAdd(storeCtx, OnlineSetKey, userID).Err()
		} else {
			err = t.mirror.SRem(storeCtx, OnlineSetKey, userID).Err()
		}
		if err != nil {
			t.logger.Warn("Failed to mirror presence", "userID", userID, "error", err)
		}
	}

	if t.bus != nil {
		ev := events.PresenceChangedEvent{UserID: userID, Online: online, Timestamp: time.Now().UTC()}
		if err := events.PresenceChangedV1.Publish(t.bus, ev, nil); err != nil {
			t.logger.Warn("Failed to publish PresenceChanged event", "userID", userID, "error", err)
		}
	}

	t.logger.Debug("Presence updated", "userID", userID, "online", online)
	return nil
}

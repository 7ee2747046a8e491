package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Noah-Sfez/whatsup/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	profileKeyPrefix  = "whatsup:profile:"
	defaultProfileTTL = 10 * time.Minute
)

// ProfileStats counts cache lookups.
type ProfileStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// ProfileCache resolves the immutable display fields of a user. Lookups go to
// Redis first when a client is configured; concurrent misses for the same user
// share one store read.
type ProfileCache struct {
	users   chat.UserRepository
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
	logger  types.Logger
	sfGroup singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	errs   atomic.Uint64
}

// NewProfileCache creates a profile cache. client may be nil.
func NewProfileCache(users chat.UserRepository, client *redis.Client, ttl, timeout time.Duration, logger types.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = defaultProfileTTL
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &ProfileCache{
		users:   users,
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
	}
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}

// Get returns the sender view of userID.
func (c *ProfileCache) Get(ctx context.Context, userID string) (*chat.Sender, error) {
	if c.client != nil {
		data, err := c.client.Get(ctx, profileKey(userID)).Bytes()
		switch {
		case err == nil:
			var sender chat.Sender
			if err := json.Unmarshal(data, &sender); err == nil {
				c.hits.Add(1)
				return &sender, nil
			}
			c.errs.Add(1)
		case errors.Is(err, redis.Nil):
			c.misses.Add(1)
		default:
			c.errs.Add(1)
			c.logger.Warn("Profile cache read failed", "userID", userID, "error", err)
		}
	}

	val, err, _ := c.sfGroup.Do(userID, func() (any, error) {
		storeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		user, err := c.users.FindUserByID(storeCtx, userID)
		if err != nil {
			return nil, chat.StoreFailure("find user", err)
		}
		return &chat.Sender{ID: user.ID, Username: user.Username, Email: user.Email}, nil
	})
	if err != nil {
		return nil, err
	}
	sender := val.(*chat.Sender)

	if c.client != nil {
		if err := c.set(ctx, sender); err != nil {
			c.errs.Add(1)
			c.logger.Warn("Profile cache write failed", "userID", userID, "error", err)
		}
	}

	copied := *sender
	return &copied, nil
}

func (c *ProfileCache) set(ctx context.Context, sender *chat.Sender) error {
	data, err := json.Marshal(sender)
	if err != nil {
		return fmt.Errorf("profile marshal error: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(sender.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("profile set error: %w", err)
	}
	return nil
}

// Stats returns a snapshot of the lookup counters.
func (c *ProfileCache) Stats() ProfileStats {
	return ProfileStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
	}
}

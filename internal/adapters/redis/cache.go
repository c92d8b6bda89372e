package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

const (
	activeTransactionKey = "pos:active_transaction"
	drawerLockKey        = "pos:drawer_open"
)

// SetActiveTransaction points the counter at the transaction being
// edited. The pointer is explicit shared state, not UI state.
func (c *Cache) SetActiveTransaction(ctx context.Context, id uuid.UUID) error {
	return c.client.Set(ctx, activeTransactionKey, id.String(), 0).Err()
}

// ActiveTransaction returns the active pointer; ok is false when no
// transaction is active.
func (c *Cache) ActiveTransaction(ctx context.Context) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, activeTransactionKey).Result()
	if err == redis.Nil {
		return uuid.UUID{}, false, nil
	}
	if err != nil {
		return uuid.UUID{}, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.UUID{}, false, err
	}
	return id, true, nil
}

func (c *Cache) ClearActiveTransaction(ctx context.Context) error {
	return c.client.Del(ctx, activeTransactionKey).Err()
}

// AcquireDrawerLock guards the one-OPEN-session invariant across API
// instances. Returns false when another session already holds it.
func (c *Cache) AcquireDrawerLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, drawerLockKey, sessionID, ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseDrawerLock(ctx context.Context) error {
	return c.client.Del(ctx, drawerLockKey).Err()
}

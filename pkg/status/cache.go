package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/clover/pkg/models"
)

const keyPrefix = "clover:sync-status:"

// Cache is a non-authoritative read-through cache for status snapshots,
// invalidated on every ledger write. Cache faults are logged and treated as
// misses; the ledger remains the source of truth.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger ectologger.Logger
}

// NewCache creates a status cache backed by Redis
func NewCache(client *redis.Client, ttl time.Duration, logger ectologger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns a cached snapshot, or nil on miss or cache fault
func (c *Cache) Get(ctx context.Context, userID string) *models.SyncStatus {
	data, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithContext(ctx).WithError(err).Warn("Status cache read failed")
		}
		return nil
	}

	var snapshot models.SyncStatus
	if err := json.Unmarshal(data, &snapshot); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Discarding malformed cached status snapshot")
		return nil
	}
	return &snapshot
}

// Set stores a snapshot with the configured TTL
func (c *Cache) Set(ctx context.Context, userID string, snapshot *models.SyncStatus) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+userID, data, c.ttl).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Status cache write failed")
	}
}

// Invalidate drops the user's cached snapshot after a ledger write
func (c *Cache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Status cache invalidation failed")
	}
}

// Package cache holds the Redis-backed read cache for slot availability.
// Entries are advisory: the capacity ledger re-checks under a row lock
// before any booking is written.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parkpass/ticketing-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "availability"

// AvailabilityCache caches SlotAvailability views in Redis.
// A nil *AvailabilityCache is valid and caches nothing.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewAvailabilityCache connects to redisURL and verifies the connection
func NewAvailabilityCache(ctx context.Context, redisURL string, ttl time.Duration, logger *logrus.Logger) (*AvailabilityCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewAvailabilityCacheWithClient(client, ttl, logger), nil
}

// NewAvailabilityCacheWithClient wraps an existing client
func NewAvailabilityCacheWithClient(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &AvailabilityCache{client: client, ttl: ttl, logger: logger}
}

// Key returns the cache key of a slot
func Key(kind models.SlotKind, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, id)
}

// Get returns a cached view; the bool is false on a miss or any cache error
func (c *AvailabilityCache) Get(ctx context.Context, kind models.SlotKind, id uuid.UUID) (*models.SlotAvailability, bool) {
	if c == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, Key(kind, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("slot_id", id).Warn("Availability cache read failed")
		}
		return nil, false
	}
	var view models.SlotAvailability
	if err := json.Unmarshal(raw, &view); err != nil {
		c.logger.WithError(err).WithField("slot_id", id).Warn("Availability cache entry is corrupt")
		return nil, false
	}
	return &view, true
}

// Set stores a view for the configured TTL
func (c *AvailabilityCache) Set(ctx context.Context, view models.SlotAvailability) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(view.Kind, view.SlotID), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("slot_id", view.SlotID).Warn("Availability cache write failed")
	}
}

// Invalidate drops the cached view of a slot
func (c *AvailabilityCache) Invalidate(ctx context.Context, kind models.SlotKind, id uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, Key(kind, id)).Err(); err != nil {
		c.logger.WithError(err).WithField("slot_id", id).Warn("Availability cache invalidation failed")
	}
}

// Close closes the Redis client
func (c *AvailabilityCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

package lectures

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lecturelink/backend/internal/models"
)

// CacheKey returns the directory cache key of an access code.
func CacheKey(code string) string {
	return "lecture:code:" + code
}

// Cache keeps code → lecture lookups in Redis so the students' polling does not hit Postgres.
type Cache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewCache creates a directory cache.
func NewCache(rdb redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached lecture, or nil on a miss.
func (c *Cache) Get(ctx context.Context, code string) (*models.Lecture, error) {
	raw, err := c.rdb.Get(ctx, CacheKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l models.Lecture
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Set stores a lecture under its access code.
func (c *Cache) Set(ctx context.Context, l *models.Lecture) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, CacheKey(l.AccessCode), raw, c.ttl).Err()
}

// Invalidate drops a cached code.
func (c *Cache) Invalidate(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, CacheKey(code)).Err()
}

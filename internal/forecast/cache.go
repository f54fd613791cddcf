package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis based caching of computed forecast views with
// per-forecast versioning. A nil cache degrades to pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(id uuid.UUID) string {
	return fmt.Sprintf("forecast:version:%s", id)
}

// version returns the current cache version for one forecast,
// initialising it when missing.
func (c *Cache) version(ctx context.Context, id uuid.UUID) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(id)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(id), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached view of a forecast by advancing its
// version.
func (c *Cache) Bump(ctx context.Context, id uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(id)).Err()
}

// FetchView loads a cached forecast view or populates it via loader.
func (c *Cache) FetchView(ctx context.Context, id uuid.UUID, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("forecast: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}

	ver, err := c.version(ctx, id)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("forecast:view:%s:%d", id, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

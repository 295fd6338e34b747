package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/caseline/internal/config"
)

const (
	permissionVersionKey = "caseline:authz:version"
	permissionKeyFormat  = "caseline:authz:v%d:user:%s"
)

// PermissionCache stores resolved group permission codes per user.
// Entries are namespaced by a policy version; bumping the version
// invalidates every entry at once across instances.
type PermissionCache interface {
	Version(ctx context.Context) (int64, error)
	BumpVersion(ctx context.Context) (int64, error)
	Get(ctx context.Context, version int64, userID string) ([]string, bool, error)
	Set(ctx context.Context, version int64, userID string, codes []string) error
	Forget(ctx context.Context, version int64, userID string) error
}

func NewPermissionCache(client *redis.Client, cfg config.Config) PermissionCache {
	ttl := cfg.Auth.PermissionCacheTTL
	if client == nil {
		return NewMemoryPermissionCache(ttl)
	}
	return NewRedisPermissionCache(client, ttl)
}

type redisPermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPermissionCache(client *redis.Client, ttl time.Duration) PermissionCache {
	return &redisPermissionCache{client: client, ttl: ttl}
}

func (c *redisPermissionCache) Version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, permissionVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *redisPermissionCache) BumpVersion(ctx context.Context) (int64, error) {
	return c.client.Incr(ctx, permissionVersionKey).Result()
}

func (c *redisPermissionCache) Get(ctx context.Context, version int64, userID string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, fmt.Sprintf(permissionKeyFormat, version, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, false, err
	}
	return codes, true, nil
}

func (c *redisPermissionCache) Set(ctx context.Context, version int64, userID string, codes []string) error {
	raw, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(permissionKeyFormat, version, userID), raw, c.ttl).Err()
}

func (c *redisPermissionCache) Forget(ctx context.Context, version int64, userID string) error {
	return c.client.Del(ctx, fmt.Sprintf(permissionKeyFormat, version, userID)).Err()
}

type memoryPermissionCache struct {
	version atomic.Int64
	entries Cache[string, []string]
	ttl     time.Duration
}

func NewMemoryPermissionCache(ttl time.Duration) PermissionCache {
	return &memoryPermissionCache{
		entries: NewTTLCache[string, []string](),
		ttl:     ttl,
	}
}

func (c *memoryPermissionCache) Version(context.Context) (int64, error) {
	return c.version.Load(), nil
}

func (c *memoryPermissionCache) BumpVersion(context.Context) (int64, error) {
	next := c.version.Add(1)
	c.entries.Purge()
	return next, nil
}

func (c *memoryPermissionCache) Get(_ context.Context, version int64, userID string) ([]string, bool, error) {
	codes, ok := c.entries.Get(fmt.Sprintf(permissionKeyFormat, version, userID))
	return codes, ok, nil
}

func (c *memoryPermissionCache) Set(_ context.Context, version int64, userID string, codes []string) error {
	c.entries.Set(fmt.Sprintf(permissionKeyFormat, version, userID), codes, c.ttl)
	return nil
}

func (c *memoryPermissionCache) Forget(_ context.Context, version int64, userID string) error {
	c.entries.Delete(fmt.Sprintf(permissionKeyFormat, version, userID))
	return nil
}

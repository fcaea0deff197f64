package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AnshRaj112/serenify-conversations/internal/logger"
	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "identity:profile:"

// ProfileCache is a best-effort store for resolved profiles. Errors are swallowed
// by implementations; a miss just means a fetch.
type ProfileCache interface {
	GetMany(ctx context.Context, ids []string) map[string]Profile
	SetMany(ctx context.Context, profiles []Profile)
}

type noopCache struct{}

func (noopCache) GetMany(context.Context, []string) map[string]Profile { return map[string]Profile{} }
func (noopCache) SetMany(context.Context, []Profile)                   {}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func profileKey(id string) string {
	return profileKeyPrefix + id
}

func (c *RedisCache) GetMany(ctx context.Context, ids []string) map[string]Profile {
	out := make(map[string]Profile, len(ids))
	if c == nil || c.client == nil || len(ids) == 0 {
		return out
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = profileKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("identity cache: mget failed")
		return out
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p Profile
		if json.Unmarshal([]byte(raw), &p) != nil {
			continue
		}
		out[ids[i]] = p
	}
	return out
}

func (c *RedisCache) SetMany(ctx context.Context, profiles []Profile) {
	if c == nil || c.client == nil || len(profiles) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for _, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		pipe.Set(ctx, profileKey(p.ID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("identity cache: write failed")
	}
}

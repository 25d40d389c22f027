package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
)

const redisKeyPrefix = "datafixer:entity:"

// redisClient is the subset of *redis.Client the cache needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Redis is a Store backed by Redis string keys with native expiry.
type Redis struct {
	client redisClient
}

// NewRedis wraps an existing client. The caller owns the client lifecycle.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return client, nil
}

func redisKey(versionTag, key string) string {
	return redisKeyPrefix + versionTag + ":" + key
}

// GetEntry implements Store.
func (r *Redis) GetEntry(ctx context.Context, key, versionTag string) (*model.CacheEntry, error) {
	raw, err := r.client.Get(ctx, redisKey(versionTag, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: redis get")
	}

	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, eris.Wrap(err, "cache: decode entry")
	}
	if !Fresh(&e, versionTag, time.Now()) {
		return nil, nil
	}
	return &e, nil
}

// PutEntry implements Store.
func (r *Redis) PutEntry(ctx context.Context, e model.CacheEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "cache: encode entry")
	}
	if err := r.client.Set(ctx, redisKey(e.VersionTag, e.Key), data, e.TTL).Err(); err != nil {
		return eris.Wrap(err, "cache: redis set")
	}
	return nil
}

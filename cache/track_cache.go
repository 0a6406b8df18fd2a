package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Melodeck/logger"
	"Melodeck/model"

	"github.com/redis/go-redis/v9"
)

// LoadFunc reads a listing from the store of record.
type LoadFunc func(ctx context.Context) ([]model.Track, error)

// TrackCache caches catalog listings. Entries are keyed by a catalog version
// so that Invalidate drops every listing at once. A listing loaded on a miss
// is stored under the version read before load ran, so a change committed
// during the load is never hidden.
type TrackCache interface {
	// List returns the full listing, calling load on a miss.
	List(ctx context.Context, load LoadFunc) ([]model.Track, error)
	// Search returns the result for term, calling load on a miss.
	Search(ctx context.Context, term string, load LoadFunc) ([]model.Track, error)
	// Invalidate is called after any catalog change.
	Invalidate(ctx context.Context)
}

const versionKey = "catalog:version"

// RedisTrackCache stores listings as JSON strings with a TTL. Redis errors
// are logged and treated as misses.
type RedisTrackCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTrackCache creates a TrackCache on client.
func NewRedisTrackCache(client *redis.Client, ttl time.Duration) *RedisTrackCache {
	return &RedisTrackCache{client: client, ttl: ttl}
}

func (c *RedisTrackCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func entryKey(version int64, suffix string) string {
	return fmt.Sprintf("catalog:v%d:%s", version, suffix)
}

func searchSuffix(term string) string {
	return "search:" + strings.ToLower(term)
}

// fetch serves suffix from the cache, or loads it and stores it under the
// version observed before loading.
func (c *RedisTrackCache) fetch(ctx context.Context, suffix string, load LoadFunc) ([]model.Track, error) {
	v, err := c.version(ctx)
	if err != nil {
		logger.Warn("Catalog cache unavailable", logger.ErrorField(err))
		return load(ctx)
	}
	key := entryKey(v, suffix)

	if tracks, ok := c.get(ctx, key); ok {
		return tracks, nil
	}

	tracks, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, tracks)
	return tracks, nil
}

func (c *RedisTrackCache) get(ctx context.Context, key string) ([]model.Track, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Failed to read catalog cache", logger.String("key", key), logger.ErrorField(err))
		}
		return nil, false
	}

	var tracks []model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		logger.Warn("Discarding corrupt catalog cache entry", logger.String("key", key), logger.ErrorField(err))
		return nil, false
	}
	return tracks, true
}

func (c *RedisTrackCache) set(ctx context.Context, key string, tracks []model.Track) {
	if tracks == nil {
		tracks = []model.Track{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		logger.Warn("Failed to encode catalog cache entry", logger.ErrorField(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("Failed to write catalog cache", logger.String("key", key), logger.ErrorField(err))
	}
}

func (c *RedisTrackCache) List(ctx context.Context, load LoadFunc) ([]model.Track, error) {
	return c.fetch(ctx, "all", load)
}

func (c *RedisTrackCache) Search(ctx context.Context, term string, load LoadFunc) ([]model.Track, error) {
	return c.fetch(ctx, searchSuffix(term), load)
}

// Invalidate bumps the catalog version. Old entries expire on their TTL.
func (c *RedisTrackCache) Invalidate(ctx context.Context) {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		logger.Error("Failed to invalidate catalog cache", logger.ErrorField(err))
	}
}

// NoopTrackCache never stores anything.
type NoopTrackCache struct{}

func (NoopTrackCache) List(ctx context.Context, load LoadFunc) ([]model.Track, error) {
	return load(ctx)
}

func (NoopTrackCache) Search(ctx context.Context, _ string, load LoadFunc) ([]model.Track, error) {
	return load(ctx)
}

func (NoopTrackCache) Invalidate(context.Context) {}

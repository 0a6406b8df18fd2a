package cache

import (
	"context"
	"testing"
	"time"

	"Melodeck/config"
	"Melodeck/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	_, err := Connect(ctx, &config.Config{})
	assert.ErrorIs(t, err, ErrDisabled)

	client, err := Connect(ctx, &config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, Check(ctx, client))
	assert.False(t, mr.Exists("melodeck:healthcheck"))

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(ctx, &config.Config{RedisAddr: addr})
	assert.Error(t, err)
}

// countingLoad returns tracks and counts how often it was called.
type countingLoad struct {
	tracks []model.Track
	calls  int
}

func (l *countingLoad) load(context.Context) ([]model.Track, error) {
	l.calls++
	return l.tracks, nil
}

func TestRedisTrackCacheListUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)
	src := &countingLoad{tracks: []model.Track{{ID: 2, Title: "B", FilePath: "songs/b.mp3"}, {ID: 1, Title: "A", FilePath: "songs/a.mp3"}}}

	got, err := c.List(ctx, src.load)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, src.calls)

	got, err = c.List(ctx, src.load)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, []int64{2, 1}, []int64{got[0].ID, got[1].ID})
	assert.Equal(t, "songs/b.mp3", got[0].FilePath)

	c.Invalidate(ctx)
	_, err = c.List(ctx, src.load)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestRedisTrackCacheInvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)

	stale := true
	load := func(ctx context.Context) ([]model.Track, error) {
		if stale {
			// 读取期间目录发生变化
			stale = false
			c.Invalidate(ctx)
			return []model.Track{}, nil
		}
		return []model.Track{{ID: 1}}, nil
	}

	got, err := c.List(ctx, load)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = c.List(ctx, load)
	require.NoError(t, err)
	assert.Len(t, got, 1, "a listing read before the change must not be served after it")
}

func TestRedisTrackCacheSearch(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)
	rock := &countingLoad{}
	jazz := &countingLoad{}

	_, err := c.Search(ctx, "Rock", rock.load)
	require.NoError(t, err)
	got, err := c.Search(ctx, "rock", rock.load)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, rock.calls, "terms are case-insensitive")

	_, err = c.Search(ctx, "jazz", jazz.load)
	require.NoError(t, err)
	assert.Equal(t, 1, jazz.calls)

	c.Invalidate(ctx)
	_, err = c.Search(ctx, "rock", rock.load)
	require.NoError(t, err)
	assert.Equal(t, 2, rock.calls)
}

func TestRedisTrackCacheExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)
	src := &countingLoad{tracks: []model.Track{{ID: 1}}}

	_, err := c.List(ctx, src.load)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = c.List(ctx, src.load)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestRedisTrackCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)
	src := &countingLoad{tracks: []model.Track{{ID: 1}}}

	require.NoError(t, mr.Set("catalog:v0:all", "{not json"))
	got, err := c.List(ctx, src.load)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, src.calls)
}

func TestRedisTrackCacheLoadError(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)

	_, err := c.List(ctx, func(context.Context) ([]model.Track, error) {
		return nil, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, mr.Exists("catalog:v0:all"))
}

func TestRedisTrackCacheDownIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	c := NewRedisTrackCache(client, time.Minute)
	src := &countingLoad{tracks: []model.Track{{ID: 1}}}
	mr.Close()

	for i := 0; i < 2; i++ {
		got, err := c.List(ctx, src.load)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	assert.Equal(t, 2, src.calls)
	c.Invalidate(ctx)
}

func TestNoopTrackCache(t *testing.T) {
	var c TrackCache = NoopTrackCache{}
	ctx := context.Background()
	src := &countingLoad{tracks: []model.Track{{ID: 1}}}

	_, err := c.List(ctx, src.load)
	require.NoError(t, err)
	_, err = c.List(ctx, src.load)
	require.NoError(t, err)
	_, err = c.Search(ctx, "x", src.load)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
	c.Invalidate(ctx)
}

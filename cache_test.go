package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSnapshotCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute)

	view := &LiveView{
		State:   StorePopulated,
		AsOf:    "14 Nov 2023 22:13:20",
		Metrics: Metrics{Total: 1, Regions: 1, Busiest: "A"},
		Regions: []string{"A"},
		Vehicles: []DisplayRow{{
			Region: "A", VehicleID: "v1", Latitude: 3.1, Longitude: 101.6, SpeedKmh: 36, Timestamp: 1_700_000_000,
		}},
	}
	require.NoError(t, cache.SetLive(ctx, view))
	assert.Equal(t, time.Minute, mr.TTL(liveViewKey))

	got, err := cache.GetLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, view, got)
}

func TestRedisSnapshotCache_Miss(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewRedisSnapshotCache(client, time.Minute)

	got, err := cache.GetLive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotCache_Expires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cache := NewRedisSnapshotCache(client, 30*time.Second)

	require.NoError(t, cache.SetLive(ctx, &LiveView{State: StoreEmpty}))
	mr.FastForward(31 * time.Second)

	got, err := cache.GetLive(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSnapshotCache_CorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set(liveViewKey, "{not json"))

	_, err := NewRedisSnapshotCache(client, time.Minute).GetLive(context.Background())
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(RedisConfig{Addr: addr})
	assert.Error(t, err)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const liveViewKey = "transit:live"

// SnapshotCache holds the latest rendered live view between polls.
type SnapshotCache interface {
	GetLive(ctx context.Context) (*LiveView, error)
	SetLive(ctx context.Context, v *LiveView) error
}

func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

// GetLive returns nil without error on a cache miss.
func (c *RedisSnapshotCache) GetLive(ctx context.Context) (*LiveView, error) {
	data, err := c.client.Get(ctx, liveViewKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live view: %w", err)
	}
	var v LiveView
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode live view: %w", err)
	}
	return &v, nil
}

func (c *RedisSnapshotCache) SetLive(ctx context.Context, v *LiveView) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, liveViewKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set live view: %w", err)
	}
	return nil
}

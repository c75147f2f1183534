// Package cache keeps the sheet document in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sheettracker/api/internal/sheet"
)

const DefaultKey = "sheet:document"

// RedisPersister stores the canonical document under a single key. A zero TTL
// keeps it forever; a positive TTL is refreshed on every save.
type RedisPersister struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPersister parses redisURL and verifies the server answers.
func NewRedisPersister(redisURL, key string, ttl time.Duration) (*RedisPersister, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisPersisterWithClient(client, key, ttl), nil
}

func NewRedisPersisterWithClient(client *redis.Client, key string, ttl time.Duration) *RedisPersister {
	if key == "" {
		key = DefaultKey
	}
	return &RedisPersister{client: client, key: key, ttl: ttl}
}

func (p *RedisPersister) Key() string { return p.key }

func (p *RedisPersister) Load(ctx context.Context) ([]byte, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sheet.ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p.key, err)
	}
	return data, nil
}

func (p *RedisPersister) Save(ctx context.Context, data []byte) error {
	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("save %s: %w", p.key, err)
	}
	return nil
}

// Invalidate drops the cached copy so the next Open falls back to its seed.
func (p *RedisPersister) Invalidate(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Close() error {
	return p.client.Close()
}

func (p *RedisPersister) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

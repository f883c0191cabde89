package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trend:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend keeps entries as JSON strings. Keys are written without a
// Redis expiry so age stays observable after an entry turns stale.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", opts.Addr)

	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Load(ctx context.Context, key string) (*Entry, error) {
	val, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode key %s: %w", key, err)
	}

	return &entry, nil
}

func (b *RedisBackend) Save(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", entry.Key, err)
	}

	if err := b.client.Set(ctx, redisKeyPrefix+entry.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", entry.Key, err)
	}

	return nil
}

// Health reports connectivity and the number of trend keys.
func (b *RedisBackend) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := b.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	var count int
	iter := b.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() == nil {
		health["key_count"] = count
	}

	return health
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

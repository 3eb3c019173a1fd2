// Package cache wraps a Redis client for the optional clip-lookup
// result cache in internal/match.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/soundmark/internal/logger"
	"go.uber.org/zap"
)

// RedisClient wraps redis.Client with production pool settings.
type RedisClient struct {
	client *redis.Client
}

// ErrMiss is returned by Get on a cache miss.
var ErrMiss = errors.New("cache: miss")

// NewRedisClient connects to host:port with optional password.
func NewRedisClient(host, port, password string) (*RedisClient, error) {
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: connect: %w", err)
	}

	logger.InfoWithFields("redis cache connected", zap.String("addr", client.Options().Addr))
	return &RedisClient{client: client}, nil
}

// Get retrieves a cached value, returning ErrMiss if absent.
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache: get: %w", err)
	}
	return val, nil
}

// SetEx stores value under key with a TTL.
func (rc *RedisClient) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := rc.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (rc *RedisClient) Close() error {
	if rc == nil || rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

package pkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SAP-F-2025/testportal-service/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrCacheDisabled is returned when no redis URL is configured
var ErrCacheDisabled = errors.New("redis url not configured")

const redisPingTimeout = 3 * time.Second

// NewRedisClient connects to the test cache and verifies the connection before returning it
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, ErrCacheDisabled
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

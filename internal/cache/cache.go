package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codebyanand/streamgate/internal/config"
)

// Redis owns the connection shared by the token revocation list and the
// access cache. Both layers key their own namespaces; this wrapper only
// manages the client lifecycle.
type Redis struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection
func New(cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

// Client exposes the underlying client
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping checks connectivity
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection
func (r *Redis) Close() error {
	return r.client.Close()
}

package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

var _ Storage = (*Redis)(nil)

// Redis is a store backed by a redis server, for deployments where document
// content is shared with other services.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a store talking to the redis server at addr.
func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping verifies the server is reachable. Called once at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) GetContent(ctx context.Context, docID string) (string, error) {
	content, err := r.client.Get(ctx, "doc:"+docID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (r *Redis) SetContent(ctx context.Context, docID string, content string) error {
	return r.client.Set(ctx, "doc:"+docID, content, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

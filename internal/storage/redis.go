package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Redis stores one namespace as a Redis hash.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis storage for namespace.
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, key: "storefront:storage:" + namespace}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.HSet(ctx, r.key, key, value).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.key, key).Err()
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

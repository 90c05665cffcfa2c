// Package redis is a Redis cache backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Backend stores keys under a common prefix.
type Backend struct {
	rdb    *goredis.Client
	prefix string
}

// New connects to addr and verifies the connection.
func New(addr, prefix string) (*Backend, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Backend{rdb: rdb, prefix: prefix}, nil
}

func (b *Backend) key(k string) string {
	if b.prefix == "" {
		return k
	}
	return b.prefix + ":" + k
}

// Get returns the value stored under key. A missing key is not an error.
func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.rdb.Get(ctx, b.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Replace applies sets and deletes in one MULTI/EXEC transaction.
func (b *Backend) Replace(ctx context.Context, set map[string]string, del []string) error {
	_, err := b.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for k, v := range set {
			pipe.Set(ctx, b.key(k), v, 0)
		}
		if len(del) > 0 {
			pipe.Del(ctx, b.keys(del)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis replace: %w", err)
	}
	return nil
}

// Delete removes keys; missing keys are ignored.
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := b.rdb.Del(ctx, b.keys(keys)...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (b *Backend) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = b.key(k)
	}
	return out
}

// Close closes the client.
func (b *Backend) Close() error {
	return b.rdb.Close()
}

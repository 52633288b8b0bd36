// Package cache holds the Redis-backed fast path for webhook deduplication.
// The database ledger stays authoritative; a cache miss only costs a query.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stay-reservations/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const (
	// dedup:{scope}:{id}
	KeyDedup = "dedup:%s:%s"

	TTLDedup = 48 * time.Hour
)

type Dedup interface {
	Seen(ctx context.Context, scope, id string) (bool, error)
	Mark(ctx context.Context, scope, id string) error
}

func NewRedisClient(ctx context.Context, cfg utils.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

type RedisDedup struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisDedup(rdb redis.Cmdable) *RedisDedup {
	return &RedisDedup{rdb: rdb, ttl: TTLDedup}
}

func (d *RedisDedup) Seen(ctx context.Context, scope, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, fmt.Sprintf(KeyDedup, scope, id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s/%s: %w", scope, id, err)
	}
	return n > 0, nil
}

func (d *RedisDedup) Mark(ctx context.Context, scope, id string) error {
	if err := d.rdb.Set(ctx, fmt.Sprintf(KeyDedup, scope, id), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", scope, id, err)
	}
	return nil
}

// NoopDedup never reports a hit; used when REDIS_ADDR is unset.
type NoopDedup struct{}

func (NoopDedup) Seen(context.Context, string, string) (bool, error) { return false, nil }
func (NoopDedup) Mark(context.Context, string, string) error         { return nil }

// MemoryDedup is a process-local Dedup, handy in tests.
type MemoryDedup struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{keys: make(map[string]struct{})}
}

func (d *MemoryDedup) Seen(_ context.Context, scope, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[fmt.Sprintf(KeyDedup, scope, id)]
	return ok, nil
}

func (d *MemoryDedup) Mark(_ context.Context, scope, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[fmt.Sprintf(KeyDedup, scope, id)] = struct{}{}
	return nil
}

package redis

import (
	"context"
	"errors"
	"fmt"

	"subgraphx/internal/config"
	rdb "subgraphx/internal/stores/redis"
)

/*
The Bloom prefilter is a low-cost probabilistic "seen/not seen" check before
the Redis SETNX. It cuts Redis QPS under a flood of duplicate events:
	- "definitely not seen" -> go to Redis;
	- "most likely seen" -> skip Redis and report a duplicate immediately,
	  with the false-positive probability bounded by error_rate.
*/

type Bloom struct {
	rdb      *rdb.Client
	Key      string
	Capacity int64
	ErrRate  float64
}

func NewBloom(cfg *config.BloomConfig, client *rdb.Client) (*Bloom, error) {
	if cfg == nil {
		return nil, errors.New("bloom config is required to the bloom")
	}
	if client == nil {
		return nil, errors.New("redis client is required to the bloom")
	}

	key := cfg.Key
	if key == "" {
		key = "dedupe:bf:events"
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1_000_000
	}

	errRate := cfg.ErrRate
	if errRate <= 0 {
		errRate = 0.001
	}

	return &Bloom{
		rdb:      client,
		Key:      key,
		Capacity: capacity,
		ErrRate:  errRate,
	}, nil
}

// Ensure creates the filter if it does not exist. Repeated calls are safe.
func (b *Bloom) Ensure(ctx context.Context) error {
	exists, err := b.rdb.Exists(ctx, b.Key).Result()
	if err != nil {
		return fmt.Errorf("failed to check if redis exists to the bloom, error: %w", err)
	}
	if exists > 0 {
		return nil
	}

	res := b.rdb.Do(ctx, "BF.RESERVE", b.Key, b.ErrRate, b.Capacity)
	if res.Err() != nil {
		// err "unknown command" when the RedisBloom module is not loaded
		return fmt.Errorf("BF.RESERVE failed: %w", res.Err())
	}

	return nil
}

// Add inserts the item. Returns true when it was definitely absent before.
func (b *Bloom) Add(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.ADD", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to add item to bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}

// Exists reports whether the item "probably" exists.
func (b *Bloom) Exists(ctx context.Context, item string) (bool, error) {
	res := b.rdb.Do(ctx, "BF.EXISTS", b.Key, item)
	if err := res.Err(); err != nil {
		return false, fmt.Errorf("failed to check if item exists to bloom: %w", err)
	}

	v, err := res.Int()
	return v == 1, err
}

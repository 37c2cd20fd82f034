package redis

import (
	"context"
	"fmt"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
	"subgraphx/internal/dedupe"
	rdb "subgraphx/internal/stores/redis"
)

var _ dedupe.Deduper = (*RedisDedupe)(nil)

// RedisDedupe is the cluster deduper: SETNX + TTL per event id, with an
// optional Bloom prefilter in front.
type RedisDedupe struct {
	log    logger.Logger
	rdb    *rdb.Client
	ttl    time.Duration
	prefix string
	bloom  *Bloom // optional
}

func NewRedisDeduper(log logger.Logger, cfg *config.DedupeConfig, client *rdb.Client, bloom *Bloom) (*RedisDedupe, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required to the redis deduper")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required to the redis deduper")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "dedupe:"
	}

	return &RedisDedupe{
		log:    log,
		rdb:    client,
		ttl:    cfg.TTL,
		prefix: prefix,
		bloom:  bloom,
	}, nil
}

func (d *RedisDedupe) Seen(ctx context.Context, id string) (bool, error) {
	// bloom "probably seen" -> duplicate without spending a SETNX
	if d.bloom != nil {
		if exists, err := d.bloom.Exists(ctx, id); err == nil && exists {
			return true, nil
		}
	}

	key := d.prefix + id
	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.log.Errorf("Redis SetNX error=%v", err)
		return false, fmt.Errorf("redis SetNX error=%v", err)
	}

	seen := !ok // ok=true -> fresh id
	if !seen && d.bloom != nil {
		if _, err = d.bloom.Add(ctx, id); err != nil {
			d.log.Errorf("Failed to add bloom id %s, err=%v", id, err)
		}
	}

	return seen, nil
}

func (d *RedisDedupe) Health(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

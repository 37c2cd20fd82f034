package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
)

type Client struct {
	*goredis.Client
}

func New(ctx context.Context, log logger.Logger, cfg *config.RedisConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed ping redis at %s, error=%w", cfg.Addr, err)
	}

	log.Infof("Connected to redis at %s db=%d", cfg.Addr, cfg.DB)
	return &Client{rdb}, nil
}

package redis

import (
	"Roger/internal/api/config"
	"Roger/internal/pkg/logger"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

var Rdb *redis.Client

// InitRedis 初始化 Redis 客户端连接，未开启时保持 Rdb 为空
func InitRedis(cfg config.RedisConfig) error {
	if !cfg.Enable {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	rdb.AddHook(logger.NewRedisLogger())

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	Rdb = rdb
	return nil
}

// Enabled 是否已连接 Redis
func Enabled() bool {
	return Rdb != nil
}

// Close 关闭连接
func Close() {
	if Rdb != nil {
		_ = Rdb.Close()
	}
}

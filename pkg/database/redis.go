package database

import (
	"context"
	"fmt"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client

// NewRedis 创建 Redis 客户端并测试连接。URL 非空时优先使用。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) {
	client, err := NewRedis(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	RDB = client
	log.Info("Redis client connected successfully")
}

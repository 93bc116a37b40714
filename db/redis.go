package db

import (
	"context"
	"fmt"
	"time"

	"FlowCash/config"

	"github.com/redis/go-redis/v9"
)

// TokenRedis 代币余额所在的 Redis 客户端
var TokenRedis *redis.Client

// ConnectTokenRedis 初始化代币使用的Redis连接
func ConnectTokenRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	TokenRedis = client
	return client, nil
}

// CloseTokenRedis 关闭代币Redis连接
func CloseTokenRedis() error {
	if TokenRedis != nil {
		return TokenRedis.Close()
	}
	return nil
}

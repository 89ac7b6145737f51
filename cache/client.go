package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config Redis连接配置
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient 创建Redis客户端并测试连接
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, ErrRedisNotAvailable
	}

	log.Printf("初始化Redis连接, 地址: %s", cfg.Addr)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}

	log.Println("Redis连接初始化成功")
	return client, nil
}

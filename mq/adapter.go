package mq

import (
	"context"
	"fmt"
	"log"

	"live-polling-backend/models"

	"github.com/redis/go-redis/v9"
)

// Notifier 归档通知器
type Notifier interface {
	NotifyArchived(ctx context.Context, poll *models.ArchivedPoll) error
	Close() error
}

// Options 选择通知器实现
type Options struct {
	Driver   string // none | redis | rocketmq
	Topic    string
	Redis    redis.Cmdable
	RocketMQ RocketConfig
}

// NewNotifier builds the notifier named by Driver.
func NewNotifier(opts Options) (Notifier, error) {
	switch opts.Driver {
	case "", "none":
		return NopNotifier{}, nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis notifier requires a redis client")
		}
		log.Printf("使用Redis发布归档通知: %s", opts.Topic)
		return NewRedisNotifier(opts.Redis, opts.Topic), nil
	case "rocketmq":
		cfg := opts.RocketMQ
		if cfg.Topic == "" {
			cfg.Topic = opts.Topic
		}
		return NewRocketNotifier(cfg)
	default:
		return nil, fmt.Errorf("unknown notifier driver %q", opts.Driver)
	}
}

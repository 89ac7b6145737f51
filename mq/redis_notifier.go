package mq

import (
	"context"
	"fmt"
	"log"

	"live-polling-backend/models"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes archive messages on a Redis pub/sub channel.
type RedisNotifier struct {
	client  redis.Cmdable
	channel string
}

// NewRedisNotifier 创建基于Redis的归档通知器
func NewRedisNotifier(client redis.Cmdable, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultTopic
	}
	return &RedisNotifier{client: client, channel: channel}
}

// NotifyArchived 发布归档消息
func (n *RedisNotifier) NotifyArchived(ctx context.Context, poll *models.ArchivedPoll) error {
	msg, body, err := encode(poll)
	if err != nil {
		return err
	}
	receivers, err := n.client.Publish(ctx, n.channel, body).Result()
	if err != nil {
		return fmt.Errorf("发送消息到Redis失败: %w", err)
	}
	log.Printf("归档消息已发布: channel=%s, 消息ID=%s, 订阅者=%d", n.channel, msg.MessageID, receivers)
	return nil
}

// Close 客户端由调用方关闭
func (n *RedisNotifier) Close() error { return nil }

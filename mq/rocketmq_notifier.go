package mq

import (
	"context"
	"fmt"
	"log"
	"time"

	"live-polling-backend/models"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

// messageProducer is the subset of rocketmq.Producer the notifier needs.
type messageProducer interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
	Shutdown() error
}

// RocketNotifier sends archive messages to a RocketMQ topic.
type RocketNotifier struct {
	producer messageProducer
	topic    string
}

// RocketConfig RocketMQ生产者配置
type RocketConfig struct {
	NameServers []string
	Group       string
	Topic       string
}

// NewRocketNotifier 创建并启动RocketMQ生产者
func NewRocketNotifier(cfg RocketConfig) (*RocketNotifier, error) {
	if len(cfg.NameServers) == 0 {
		return nil, fmt.Errorf("RocketMQ地址未配置")
	}
	log.Printf("初始化RocketMQ连接, 地址: %v", cfg.NameServers)

	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServers),
		producer.WithGroupName(cfg.Group),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("创建RocketMQ生产者失败: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("启动RocketMQ生产者失败: %w", err)
	}

	log.Println("RocketMQ生产者初始化成功")
	return newRocketNotifier(p, cfg.Topic), nil
}

func newRocketNotifier(p messageProducer, topic string) *RocketNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &RocketNotifier{producer: p, topic: topic}
}

// NotifyArchived 同步发送归档消息
func (n *RocketNotifier) NotifyArchived(ctx context.Context, poll *models.ArchivedPoll) error {
	msg, body, err := encode(poll)
	if err != nil {
		return err
	}

	message := primitive.NewMessage(n.topic, body)
	message.WithTag("archived")
	message.WithKeys([]string{msg.MessageID})

	res, err := n.producer.SendSync(ctx, message)
	if err != nil {
		return fmt.Errorf("发送消息到RocketMQ失败: %w", err)
	}
	log.Printf("归档消息发送成功: 消息ID=%s, 结果=%s", msg.MessageID, res.String())
	return nil
}

// Close 关闭生产者
func (n *RocketNotifier) Close() error {
	if err := n.producer.Shutdown(); err != nil {
		return fmt.Errorf("关闭RocketMQ生产者失败: %w", err)
	}
	return nil
}

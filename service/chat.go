package service

import "live-polling-backend/models"

// ChatLog keeps the most recent chat messages in a ring buffer.
// A non-positive capacity keeps everything.
type ChatLog struct {
	capacity int
	buf      []models.ChatMessage
	start    int
}

// NewChatLog 创建聊天记录
func NewChatLog(capacity int) *ChatLog {
	return &ChatLog{capacity: capacity}
}

// Append 追加消息，超过容量时覆盖最旧的消息
func (c *ChatLog) Append(msg models.ChatMessage) {
	if c.capacity <= 0 || len(c.buf) < c.capacity {
		c.buf = append(c.buf, msg)
		return
	}
	c.buf[c.start] = msg
	c.start = (c.start + 1) % c.capacity
}

// Messages returns the retained messages, oldest first.
func (c *ChatLog) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(c.buf))
	out = append(out, c.buf[c.start:]...)
	out = append(out, c.buf[:c.start]...)
	return out
}

// Len 当前保留的消息数
func (c *ChatLog) Len() int {
	return len(c.buf)
}

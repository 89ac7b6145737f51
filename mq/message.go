package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"live-polling-backend/models"
)

// DefaultTopic 归档通知的默认主题
const DefaultTopic = "polls.archived"

// ArchiveMessage is published once per archived poll.
type ArchiveMessage struct {
	MessageID  string                  `json:"message_id"`
	PollID     string                  `json:"poll_id"`
	Question   string                  `json:"question"`
	Owner      string                  `json:"teacher_username"`
	TotalVotes int                     `json:"total_votes"`
	Options    []models.ArchivedOption `json:"options"`
	ArchivedAt int64                   `json:"archived_at"`
}

// NewArchiveMessage 根据归档投票构造消息
func NewArchiveMessage(poll *models.ArchivedPoll) ArchiveMessage {
	archivedAt := poll.ArchivedAt
	if archivedAt.IsZero() {
		archivedAt = time.Now()
	}
	return ArchiveMessage{
		MessageID:  fmt.Sprintf("%s_archived", poll.ID),
		PollID:     poll.ID,
		Question:   poll.Question,
		Owner:      poll.Owner,
		TotalVotes: poll.TotalVotes(),
		Options:    poll.Options,
		ArchivedAt: archivedAt.UnixMilli(),
	}
}

func encode(poll *models.ArchivedPoll) (ArchiveMessage, []byte, error) {
	msg := NewArchiveMessage(poll)
	body, err := json.Marshal(msg)
	if err != nil {
		return msg, nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	return msg, body, nil
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyArchived(context.Context, *models.ArchivedPoll) error { return nil }

func (NopNotifier) Close() error { return nil }

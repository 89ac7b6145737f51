package models

import "time"

// ArchivedPoll is the immutable record of an expired poll with its final counts.
type ArchivedPoll struct {
	ID           string           `gorm:"primaryKey;size:64" json:"_id"`
	Question     string           `gorm:"not null" json:"question"`
	Owner        string           `gorm:"not null;index;size:128" json:"teacherUsername"`
	TimerSeconds int              `gorm:"not null" json:"timer"`
	Options      []ArchivedOption `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`
	CreatedAt    time.Time        `gorm:"index" json:"createdAt"`
	ArchivedAt   time.Time        `json:"archivedAt"`
}

// ArchivedOption is one option of an archived poll.
type ArchivedOption struct {
	ID       string `gorm:"primaryKey;size:96" json:"_id"`
	PollID   string `gorm:"not null;index;size:64" json:"-"`
	Position int    `gorm:"not null" json:"-"`
	Text     string `gorm:"not null" json:"text"`
	Votes    int    `gorm:"default:0" json:"votes"`
}

// TotalVotes 归档投票的总票数
func (a *ArchivedPoll) TotalVotes() int {
	total := 0
	for _, opt := range a.Options {
		total += opt.Votes
	}
	return total
}

// ChatMessage is a chat line relayed to every client.
type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

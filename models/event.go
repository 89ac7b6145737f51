package models

import "encoding/json"

// EventType 推送给客户端的事件类型
type EventType string

const (
	EventPollStarted         EventType = "pollStarted"
	EventTallyUpdated        EventType = "tallyUpdated"
	EventPollEnded           EventType = "pollEnded"
	EventRosterChanged       EventType = "rosterChanged"
	EventChatMessage         EventType = "chatMessage"
	EventRemoved             EventType = "removed"
	EventLiveConnectionCount EventType = "liveConnectionCount"
	EventAck                 EventType = "ack"
)

// Event is the outbound envelope for every live message. Seq is set on
// session events and increases in publish order; broker-local events leave it zero.
type Event struct {
	Type EventType   `json:"type"`
	Seq  uint64      `json:"seq,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ToJSON 将事件转换为JSON字节数组
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PollStartedPayload announces a freshly created poll. StartedAt is Unix milliseconds.
type PollStartedPayload struct {
	PollID    string   `json:"_id"`
	Question  string   `json:"question"`
	Options   []Option `json:"options"`
	Timer     int      `json:"timer"`
	StartedAt int64    `json:"startedAt"`
}

// PollEndedPayload 投票结束通知
type PollEndedPayload struct {
	PollID string `json:"pollId,omitempty"`
}

// RosterPayload carries the full participant list, never a delta.
type RosterPayload struct {
	Identities []string `json:"identities"`
}

// RemovedPayload 被踢出的参与者
type RemovedPayload struct {
	Identity string `json:"username"`
}

// ConnectionCountPayload 当前在线连接数
type ConnectionCountPayload struct {
	Count int `json:"studentCount"`
}

// AckPayload answers one inbound request.
type AckPayload struct {
	ID      string      `json:"id,omitempty"`
	Success bool        `json:"success"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// InboundMessage is a client request over the live channel.
type InboundMessage struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinRosterInput 加入聊天名单
type JoinRosterInput struct {
	Username string `json:"username"`
}

// KickInput 踢出参与者
type KickInput struct {
	Username string `json:"username"`
}

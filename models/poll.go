package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Option is one answer choice of a poll. Index is stable for the poll's lifetime,
// but votes are keyed by Text.
type Option struct {
	Index   int    `json:"id"`
	Text    string `json:"text"`
	Correct *bool  `json:"correct"`
}

// UnmarshalJSON accepts either an option object or a bare option text.
func (o *Option) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*o = Option{Text: text}
		return nil
	}
	type plain Option
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Option(p)
	return nil
}

// Poll is the single active poll of the session.
type Poll struct {
	ID           string    `json:"_id"`
	Question     string    `json:"question"`
	Options      []Option  `json:"options"`
	TimerSeconds int       `json:"timer"`
	StartedAt    time.Time `json:"-"`
	Owner        string    `json:"teacherUsername"`
}

// Deadline 投票截止时间
func (p *Poll) Deadline() time.Time {
	return p.StartedAt.Add(time.Duration(p.TimerSeconds) * time.Second)
}

// TimeLeft returns the whole seconds remaining at now, floored at zero.
func (p *Poll) TimeLeft(now time.Time) int {
	elapsed := int(now.Sub(p.StartedAt) / time.Second)
	if now.Before(p.StartedAt) {
		elapsed = 0
	}
	left := p.TimerSeconds - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// HasOption 检查选项文本是否属于该投票
func (p *Poll) HasOption(text string) bool {
	for _, opt := range p.Options {
		if opt.Text == text {
			return true
		}
	}
	return false
}

// PollSnapshot is the point-in-time view used by reconnecting clients.
// StartedAt is Unix milliseconds of the server clock.
type PollSnapshot struct {
	PollID         string   `json:"pollId"`
	Question       string   `json:"question"`
	Options        []Option `json:"options"`
	TimeLeft       int      `json:"timeLeft"`
	TotalTimeLimit int      `json:"totalTimeLimit"`
	StartedAt      int64    `json:"startedAt"`
	Owner          string   `json:"teacherUsername"`
	IsActive       bool     `json:"isActive"`
}

// Tally maps option text to its vote count.
type Tally map[string]int

// Total 总票数
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Equal reports whether both tallies hold the same counts.
func (t Tally) Equal(other Tally) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Clone 复制一份计票结果
func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// TimerSeconds accepts the timer either as a JSON number or a numeric string,
// since presenter forms send both.
type TimerSeconds int

// UnmarshalJSON 兼容数字和字符串两种格式
func (t *TimerSeconds) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*t = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid timer %q", raw)
	}
	*t = TimerSeconds(n)
	return nil
}

// CreatePollInput 创建投票的请求数据
type CreatePollInput struct {
	Question string       `json:"question"`
	Options  []Option     `json:"options"`
	Timer    TimerSeconds `json:"timer"`
}

// VoteInput 提交投票的请求数据
type VoteInput struct {
	PollID   string `json:"pollId"`
	Username string `json:"username"`
	Option   string `json:"option"`
}

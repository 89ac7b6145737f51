package recovery

import (
	"encoding/json"
	"sync"
	"time"

	"live-polling-backend/models"
)

const maxChatMessages = 500

// State is what a client shows: the recovered snapshot merged with live events.
type State struct {
	Poll            *models.PollSnapshot `json:"poll"`
	TimeLeft        int                  `json:"timeLeft"`
	HasVoted        bool                 `json:"hasVoted"`
	Tally           models.Tally         `json:"tally"`
	Roster          []string             `json:"roster,omitempty"`
	Chat            []models.ChatMessage `json:"chat,omitempty"`
	ConnectionCount int                  `json:"studentCount"`
	Removed         bool                 `json:"removed,omitempty"`
}

// View merges events idempotently: tallies and rosters replace local state
// rather than adding to it, so replaying an event already reflected in the
// snapshot changes nothing.
type View struct {
	mu         sync.Mutex
	identity   string
	state      State
	receivedAt time.Time
	now        func() time.Time

	// revision of the last snapshot; poll events at or below it are already in it
	revision uint64
}

// NewView 创建客户端视图
func NewView(identity string, now func() time.Time) *View {
	if now == nil {
		now = time.Now
	}
	return &View{identity: identity, now: now}
}

// Reset installs a freshly recovered snapshot.
func (v *View) Reset(snap *models.PollSnapshot, hasVoted bool, tally models.Tally) {
	v.ResetAt(snap, hasVoted, tally, 0)
}

// ResetAt installs a snapshot taken at the given session revision.
func (v *View) ResetAt(snap *models.PollSnapshot, hasVoted bool, tally models.Tally, revision uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.revision = revision
	v.state.Poll = snap
	v.state.HasVoted = hasVoted && snap != nil
	v.state.Tally = tally.Clone()
	v.receivedAt = v.now()
}

// MarkVoted 记录本地已投票
func (v *View) MarkVoted() {
	v.mu.Lock()
	v.state.HasVoted = true
	v.mu.Unlock()
}

// State returns a copy with TimeLeft evaluated at the current instant.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.state
	st.TimeLeft = v.timeLeftLocked()
	if st.Poll != nil {
		cp := *st.Poll
		st.Poll = &cp
	}
	st.Tally = v.state.Tally.Clone()
	st.Roster = append([]string(nil), v.state.Roster...)
	st.Chat = append([]models.ChatMessage(nil), v.state.Chat...)
	return st
}

// TimeLeft counts down from the snapshot's timeLeft using the local clock
// since it was received; it never increases until a new poll starts.
func (v *View) TimeLeft() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeLeftLocked()
}

func (v *View) timeLeftLocked() int {
	p := v.state.Poll
	if p == nil || !p.IsActive {
		return 0
	}
	elapsed := int(v.now().Sub(v.receivedAt) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	left := p.TimeLeft - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// ApplyEvent is Apply for an event carrying its session sequence number.
// Poll events the last snapshot already reflects are skipped; roster, chat
// and connection count are never part of the snapshot and always apply.
func (v *View) ApplyEvent(typ models.EventType, seq uint64, data json.RawMessage) (bool, error) {
	switch typ {
	case models.EventPollStarted, models.EventTallyUpdated, models.EventPollEnded:
		v.mu.Lock()
		stale := seq != 0 && seq <= v.revision
		v.mu.Unlock()
		if stale {
			return false, nil
		}
	}
	return v.Apply(typ, data)
}

// Apply merges one live event and reports whether visible state changed.
func (v *View) Apply(typ models.EventType, data json.RawMessage) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch typ {
	case models.EventPollStarted:
		var p models.PollStartedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return false, err
		}
		v.state.Poll = &models.PollSnapshot{
			PollID:         p.PollID,
			Question:       p.Question,
			Options:        p.Options,
			TimeLeft:       p.Timer,
			TotalTimeLimit: p.Timer,
			StartedAt:      p.StartedAt,
			IsActive:       true,
		}
		v.receivedAt = v.now()
		v.state.HasVoted = false
		v.state.Tally = make(models.Tally, len(p.Options))
		for _, opt := range p.Options {
			v.state.Tally[opt.Text] = 0
		}
		return true, nil

	case models.EventTallyUpdated:
		var t models.Tally
		if err := json.Unmarshal(data, &t); err != nil {
			return false, err
		}
		if v.state.Tally.Equal(t) {
			return false, nil
		}
		v.state.Tally = t
		return true, nil

	case models.EventPollEnded:
		var p models.PollEndedPayload
		if len(data) > 0 {
			if err := json.Unmarshal(data, &p); err != nil {
				return false, err
			}
		}
		poll := v.state.Poll
		if poll == nil || !poll.IsActive || (p.PollID != "" && p.PollID != poll.PollID) {
			return false, nil
		}
		ended := *poll
		ended.IsActive = false
		ended.TimeLeft = 0
		v.state.Poll = &ended
		return true, nil

	case models.EventRosterChanged:
		var r models.RosterPayload
		if err := json.Unmarshal(data, &r); err != nil {
			return false, err
		}
		v.state.Roster = r.Identities
		return true, nil

	case models.EventChatMessage:
		var m models.ChatMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return false, err
		}
		v.state.Chat = append(v.state.Chat, m)
		if len(v.state.Chat) > maxChatMessages {
			v.state.Chat = v.state.Chat[len(v.state.Chat)-maxChatMessages:]
		}
		return true, nil

	case models.EventLiveConnectionCount:
		var c models.ConnectionCountPayload
		if err := json.Unmarshal(data, &c); err != nil {
			return false, err
		}
		if c.Count == v.state.ConnectionCount {
			return false, nil
		}
		v.state.ConnectionCount = c.Count
		return true, nil

	case models.EventRemoved:
		var r models.RemovedPayload
		if err := json.Unmarshal(data, &r); err != nil {
			return false, err
		}
		if r.Identity != v.identity || v.state.Removed {
			return false, nil
		}
		v.state.Removed = true
		return true, nil
	}
	return false, nil
}

package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/repository"

	"github.com/google/uuid"
)

// Publisher fans events out to connected clients. Session calls it while
// holding its lock, so implementations must not block and must not call back
// into the Session.
type Publisher interface {
	Broadcast(evt *models.Event)
	SendTo(identity string, evt *models.Event)
}

// ArchiveNotifier is told about every archived poll, outside the session lock.
type ArchiveNotifier interface {
	NotifyArchived(ctx context.Context, poll *models.ArchivedPoll) error
}

// Timer is the part of *time.Timer the session needs.
type Timer interface {
	Stop() bool
}

// Options 会话配置
type Options struct {
	History           repository.HistoryStore
	Publisher         Publisher
	Notifier          ArchiveNotifier
	ChatCapacity      int
	LedgerPolls       int
	ArchiveSuperseded bool
	ArchiveTimeout    time.Duration

	// Now and AfterFunc default to time.Now and time.AfterFunc.
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

type activePoll struct {
	poll       *models.Poll
	generation uint64
	timer      Timer
}

// Session is the authoritative state of the one live classroom session. Every
// mutation of the active poll, ledger, roster and chat log goes through mu,
// and the resulting events are published before mu is released, so clients
// observe events in the order the mutations happened.
type Session struct {
	mu         sync.Mutex
	active     *activePoll
	generation uint64
	ledger     *Ledger
	roster     Roster
	chat       *ChatLog

	history           repository.HistoryStore
	publisher         Publisher
	notifier          ArchiveNotifier
	archiveSuperseded bool
	archiveTimeout    time.Duration
	now               func() time.Time
	afterFunc         func(d time.Duration, f func()) Timer

	// revision counts events published by the session. Snapshots carry it
	// so a reconnecting client can skip queued events it already reflects.
	revision uint64

	archive *archiver
	closed  bool
}

// NewSession 创建会话
func NewSession(opts Options) *Session {
	s := &Session{
		ledger:            NewLedger(opts.LedgerPolls),
		chat:              NewChatLog(opts.ChatCapacity),
		history:           opts.History,
		publisher:         opts.Publisher,
		notifier:          opts.Notifier,
		archiveSuperseded: opts.ArchiveSuperseded,
		archiveTimeout:    opts.ArchiveTimeout,
		now:               opts.Now,
		afterFunc:         opts.AfterFunc,
	}
	if s.history == nil {
		s.history = repository.NewMemoryHistory(0)
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.archiveTimeout <= 0 {
		s.archiveTimeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	s.archive = newArchiver(s.history, s.notifier, s.archiveTimeout)
	return s
}

// SetPublisher swaps the event sink. Used when the broker is built after the session.
func (s *Session) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	s.publisher = p
}

// CreatePoll validates the request, replaces any active poll, starts the
// countdown and broadcasts pollStarted.
func (s *Session) CreatePoll(owner string, in models.CreatePollInput) (*models.Poll, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidPoll)
	}
	if len(in.Options) < 1 {
		return nil, fmt.Errorf("%w: at least one option is required", ErrInvalidPoll)
	}
	if in.Timer <= 0 {
		return nil, fmt.Errorf("%w: timer must be positive", ErrInvalidPoll)
	}
	options := make([]models.Option, len(in.Options))
	for i, opt := range in.Options {
		if strings.TrimSpace(opt.Text) == "" {
			return nil, fmt.Errorf("%w: option %d has no text", ErrInvalidPoll, i)
		}
		options[i] = models.Option{Index: i, Text: opt.Text, Correct: opt.Correct}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: session closed", ErrNoActivePoll)
	}

	if prev := s.active; prev != nil {
		prev.timer.Stop()
		if s.archiveSuperseded {
			s.archiveLocked(prev.poll)
		} else {
			log.Printf("新投票覆盖进行中的投票，旧投票不归档 [Poll ID: %s]", prev.poll.ID)
		}
		s.active = nil
	}

	s.generation++
	generation := s.generation
	poll := &models.Poll{
		ID:           "poll_" + uuid.NewString(),
		Question:     question,
		Options:      options,
		TimerSeconds: int(in.Timer),
		StartedAt:    s.now(),
		Owner:        owner,
	}
	s.ledger.Reset(poll.ID)
	s.active = &activePoll{
		poll:       poll,
		generation: generation,
		timer: s.afterFunc(time.Duration(poll.TimerSeconds)*time.Second, func() {
			s.expire(generation)
		}),
	}

	log.Printf("投票已创建 [Poll ID: %s, 主持人: %s, 时长: %ds, 选项数: %d]",
		poll.ID, owner, poll.TimerSeconds, len(options))

	s.broadcastLocked(&models.Event{
		Type: models.EventPollStarted,
		Data: models.PollStartedPayload{
			PollID:    poll.ID,
			Question:  poll.Question,
			Options:   copyOptions(poll.Options),
			Timer:     poll.TimerSeconds,
			StartedAt: poll.StartedAt.UnixMilli(),
		},
	})

	cp := *poll
	cp.Options = copyOptions(poll.Options)
	return &cp, nil
}

// expire archives the poll started with generation. A timer from a replaced
// poll finds a different generation and does nothing.
func (s *Session) expire(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.generation != generation {
		log.Printf("忽略过期的计时器 [generation: %d]", generation)
		return
	}
	poll := s.active.poll
	s.archiveLocked(poll)
	s.active = nil

	s.broadcastLocked(&models.Event{
		Type: models.EventPollEnded,
		Data: models.PollEndedPayload{PollID: poll.ID},
	})
}

// ExpireNow forces the active poll through expiry, as if its timer had fired.
func (s *Session) ExpireNow() {
	s.mu.Lock()
	var generation uint64
	if s.active != nil {
		generation = s.active.generation
		s.active.timer.Stop()
	}
	s.mu.Unlock()
	if generation != 0 {
		s.expire(generation)
	}
}

// archiveLocked snapshots the final counts and queues the archive write.
// Caller holds mu; the store is written by the archiver goroutine.
func (s *Session) archiveLocked(poll *models.Poll) {
	tally := ComputeTally(poll.Options, s.ledger.Entries(poll.ID))
	archived := &models.ArchivedPoll{
		ID:           poll.ID,
		Question:     poll.Question,
		Owner:        poll.Owner,
		TimerSeconds: poll.TimerSeconds,
		CreatedAt:    poll.StartedAt,
		ArchivedAt:   s.now(),
		Options:      make([]models.ArchivedOption, len(poll.Options)),
	}
	for i, opt := range poll.Options {
		archived.Options[i] = models.ArchivedOption{
			ID:       fmt.Sprintf("opt_%s_%d", poll.ID, i),
			PollID:   poll.ID,
			Position: i,
			Text:     opt.Text,
			Votes:    tally[opt.Text],
		}
	}

	s.archive.enqueue(archived)
}

// SubmitVote admits at most one vote per identity for the active poll and
// broadcasts the new tally. A vote that reaches the lock after the deadline
// is rejected even if the expiry timer has not run yet.
func (s *Session) SubmitVote(pollID, identity, option string) (models.Tally, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrEmptyIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.poll.ID != pollID {
		return nil, ErrNoActivePoll
	}
	poll := s.active.poll
	if !s.now().Before(poll.Deadline()) {
		return nil, ErrNoActivePoll
	}
	if s.ledger.HasVoted(poll.ID, identity) {
		return nil, ErrAlreadyVoted
	}
	if !poll.HasOption(option) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	s.ledger.Record(poll.ID, identity, option)

	tally := ComputeTally(poll.Options, s.ledger.Entries(poll.ID))
	log.Printf("投票成功 [Poll ID: %s, 用户: %s, 选项: %s]", poll.ID, identity, option)

	s.broadcastLocked(&models.Event{Type: models.EventTallyUpdated, Data: tally.Clone()})
	return tally, nil
}

// Snapshot returns the active poll as seen at the current instant, or nil.
func (s *Session) Snapshot() *models.PollSnapshot {
	snap, _ := s.SnapshotAt()
	return snap
}

// SnapshotAt is Snapshot plus the revision of the last event published
// before it was taken. Events with a higher Seq are not reflected in it.
func (s *Session) SnapshotAt() (*models.PollSnapshot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, s.revision
	}
	poll := s.active.poll
	left := poll.TimeLeft(s.now())
	return &models.PollSnapshot{
		PollID:         poll.ID,
		Question:       poll.Question,
		Options:        copyOptions(poll.Options),
		TimeLeft:       left,
		TotalTimeLimit: poll.TimerSeconds,
		StartedAt:      poll.StartedAt.UnixMilli(),
		Owner:          poll.Owner,
		IsActive:       left > 0,
	}, s.revision
}

// HasVoted 查询该身份是否已对pollID投票
func (s *Session) HasVoted(pollID, identity string) bool {
	return s.ledger.HasVoted(pollID, identity)
}

// Tally returns the live counts for pollID, or an empty tally if pollID is not active.
func (s *Session) Tally(pollID string) models.Tally {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.poll.ID != pollID {
		return models.Tally{}
	}
	return ComputeTally(s.active.poll.Options, s.ledger.Entries(pollID))
}

// History 查询主持人的历史投票, 先等待已排队的归档写入完成
func (s *Session) History(ctx context.Context, owner string) ([]models.ArchivedPoll, error) {
	s.archive.flush()
	return s.history.ByOwner(ctx, owner)
}

// JoinRoster adds identity if absent and broadcasts the full roster.
func (s *Session) JoinRoster(identity string) ([]string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roster.Add(identity) {
		log.Printf("参与者加入 [用户: %s]", identity)
	}
	list := s.roster.List()
	s.broadcastLocked(&models.Event{Type: models.EventRosterChanged, Data: models.RosterPayload{Identities: list}})
	return list, nil
}

// Kick removes identity, broadcasts the roster and tells that participant's
// connections they were removed.
func (s *Session) Kick(identity string) ([]string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ErrEmptyIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster.Remove(identity)
	list := s.roster.List()
	log.Printf("参与者被移出 [用户: %s, 剩余: %d]", identity, len(list))

	s.broadcastLocked(&models.Event{Type: models.EventRosterChanged, Data: models.RosterPayload{Identities: list}})
	s.sendToLocked(identity, &models.Event{Type: models.EventRemoved, Data: models.RemovedPayload{Identity: identity}})
	return list, nil
}

// Roster 当前参与者名单
func (s *Session) Roster() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.List()
}

// PostChat stores the message and relays it verbatim.
func (s *Session) PostChat(msg models.ChatMessage) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	s.chat.Append(msg)
	s.broadcastLocked(&models.Event{Type: models.EventChatMessage, Data: msg})
	return msg
}

// ChatMessages returns the retained chat log.
func (s *Session) ChatMessages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Messages()
}

// Stats 会话统计信息
type Stats struct {
	ActivePollID  string `json:"active_poll_id,omitempty"`
	ArchivedPolls int    `json:"archived_polls"`
	RosterSize    int    `json:"roster_size"`
	ChatMessages  int    `json:"chat_messages"`
}

// Stats 返回会话统计
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		ArchivedPolls: int(s.archive.written.Load()),
		RosterSize:    len(s.roster.identities),
		ChatMessages:  s.chat.Len(),
	}
	if s.active != nil {
		st.ActivePollID = s.active.poll.ID
	}
	return st
}

// Flush waits until every queued archive write has reached the history store.
func (s *Session) Flush() {
	s.archive.flush()
}

// Close stops the pending expiry timer and drains queued archive writes.
// The active poll is dropped unarchived.
func (s *Session) Close() {
	s.mu.Lock()
	if s.active != nil {
		s.active.timer.Stop()
		s.active = nil
	}
	s.closed = true
	s.mu.Unlock()
	s.archive.close()
}

// broadcastLocked stamps evt with the next revision. Caller holds mu.
func (s *Session) broadcastLocked(evt *models.Event) {
	s.revision++
	evt.Seq = s.revision
	s.publisher.Broadcast(evt)
}

// sendToLocked 定向发送事件, 调用方持有 mu
func (s *Session) sendToLocked(identity string, evt *models.Event) {
	s.revision++
	evt.Seq = s.revision
	s.publisher.SendTo(identity, evt)
}

func copyOptions(in []models.Option) []models.Option {
	return append([]models.Option(nil), in...)
}

type nopPublisher struct{}

func (nopPublisher) Broadcast(*models.Event) {}

func (nopPublisher) SendTo(string, *models.Event) {}

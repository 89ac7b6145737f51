package repository

import (
	"context"
	"sync"

	"live-polling-backend/models"
)

// HistoryStore is the append-only log of archived polls.
type HistoryStore interface {
	// Append 追加一条归档记录
	Append(ctx context.Context, poll *models.ArchivedPoll) error
	// ByOwner returns the owner's archived polls in archival order.
	ByOwner(ctx context.Context, owner string) ([]models.ArchivedPoll, error)
	// Count 归档总数
	Count(ctx context.Context) (int64, error)
}

// MemoryHistory keeps archives in process memory. When maxEntries is positive
// the oldest archives are evicted first.
type MemoryHistory struct {
	mu         sync.RWMutex
	polls      []models.ArchivedPoll
	maxEntries int
}

// NewMemoryHistory 创建内存归档存储
func NewMemoryHistory(maxEntries int) *MemoryHistory {
	return &MemoryHistory{maxEntries: maxEntries}
}

// Append 追加归档
func (m *MemoryHistory) Append(_ context.Context, poll *models.ArchivedPoll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls = append(m.polls, clonePoll(poll))
	if m.maxEntries > 0 && len(m.polls) > m.maxEntries {
		m.polls = append([]models.ArchivedPoll(nil), m.polls[len(m.polls)-m.maxEntries:]...)
	}
	return nil
}

// ByOwner 按主持人查询
func (m *MemoryHistory) ByOwner(_ context.Context, owner string) ([]models.ArchivedPoll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ArchivedPoll, 0)
	for i := range m.polls {
		if m.polls[i].Owner == owner {
			out = append(out, clonePoll(&m.polls[i]))
		}
	}
	return out, nil
}

// Count 归档总数
func (m *MemoryHistory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.polls)), nil
}

func clonePoll(poll *models.ArchivedPoll) models.ArchivedPoll {
	cp := *poll
	cp.Options = append([]models.ArchivedOption(nil), poll.Options...)
	return cp
}

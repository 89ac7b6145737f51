package service

import "sync"

// DefaultLedgerPolls is how many polls' vote entries a ledger keeps.
const DefaultLedgerPolls = 100

// Ledger records which identity voted for which option text, per poll id.
// It is the single source of truth for "already voted". Entries of earlier
// polls are kept so their voted flag still answers, up to maxPolls.
type Ledger struct {
	mu       sync.RWMutex
	votes    map[string]map[string]string
	order    []string
	maxPolls int
}

// NewLedger 创建投票记录, maxPolls <= 0 时使用默认值
func NewLedger(maxPolls int) *Ledger {
	if maxPolls <= 0 {
		maxPolls = DefaultLedgerPolls
	}
	return &Ledger{votes: make(map[string]map[string]string), maxPolls: maxPolls}
}

// Reset starts an empty ledger for pollID. The oldest polls are evicted once
// more than maxPolls are held.
func (l *Ledger) Reset(pollID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.votes[pollID]; !ok {
		l.order = append(l.order, pollID)
	}
	l.votes[pollID] = make(map[string]string)
	for len(l.order) > l.maxPolls {
		delete(l.votes, l.order[0])
		l.order = l.order[1:]
	}
}

// HasVoted 检查该身份是否已经投过票
func (l *Ledger) HasVoted(pollID, identity string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.votes[pollID][identity]
	return ok
}

// Record stores the vote if the identity has none yet. First writer wins;
// the return value reports whether this call wrote the entry.
func (l *Ledger) Record(pollID, identity, option string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.votes[pollID]
	if !ok {
		entries = make(map[string]string)
		l.votes[pollID] = entries
		l.order = append(l.order, pollID)
	}
	if _, exists := entries[identity]; exists {
		return false
	}
	entries[identity] = option
	return true
}

// Entries returns a copy of the identity → option map for pollID.
func (l *Ledger) Entries(pollID string) map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.votes[pollID]))
	for k, v := range l.votes[pollID] {
		out[k] = v
	}
	return out
}

// Count 该投票的已投票人数
func (l *Ledger) Count(pollID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.votes[pollID])
}

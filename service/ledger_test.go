package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedger_FirstWriterWins(t *testing.T) {
	l := NewLedger(0)
	l.Reset("p1")

	assert.False(t, l.HasVoted("p1", "alice"))
	assert.True(t, l.Record("p1", "alice", "Red"))
	assert.False(t, l.Record("p1", "alice", "Blue"))
	assert.True(t, l.HasVoted("p1", "alice"))
	assert.Equal(t, map[string]string{"alice": "Red"}, l.Entries("p1"))
}

func TestLedger_KeepsEarlierPolls(t *testing.T) {
	l := NewLedger(0)
	l.Reset("p1")
	l.Record("p1", "alice", "Red")

	l.Reset("p2")
	assert.True(t, l.HasVoted("p1", "alice"))
	assert.False(t, l.HasVoted("p2", "alice"))
	assert.Equal(t, 0, l.Count("p2"))
}

func TestLedger_EvictsOldestPolls(t *testing.T) {
	l := NewLedger(2)
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("p%d", i)
		l.Reset(id)
		l.Record(id, "alice", "Red")
	}

	assert.False(t, l.HasVoted("p1", "alice"))
	assert.True(t, l.HasVoted("p2", "alice"))
	assert.True(t, l.HasVoted("p3", "alice"))
}

func TestLedger_EntriesIsACopy(t *testing.T) {
	l := NewLedger(0)
	l.Reset("p1")
	l.Record("p1", "alice", "Red")

	entries := l.Entries("p1")
	entries["mallory"] = "Red"
	assert.Equal(t, 1, l.Count("p1"))
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := NewLedger(0)
	l.Reset("p1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Record("p1", "alice", fmt.Sprintf("opt%d", i)) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, l.Count("p1"))
}

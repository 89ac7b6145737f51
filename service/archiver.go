package service

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"live-polling-backend/models"
	"live-polling-backend/repository"
)

// archiver writes archived polls to the history store in the order they were
// queued, on its own goroutine, so store latency never reaches the session lock.
type archiver struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*models.ArchivedPoll
	busy   bool
	closed bool
	done   chan struct{}

	history  repository.HistoryStore
	notifier ArchiveNotifier
	timeout  time.Duration
	written  atomic.Int64
}

func newArchiver(history repository.HistoryStore, notifier ArchiveNotifier, timeout time.Duration) *archiver {
	a := &archiver{
		done:     make(chan struct{}),
		history:  history,
		notifier: notifier,
		timeout:  timeout,
	}
	a.cond = sync.NewCond(&a.mu)
	go a.run()
	return a
}

// enqueue never blocks. After close the poll is written inline so shutdown
// paths still persist it.
func (a *archiver) enqueue(poll *models.ArchivedPoll) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.write(poll)
		return
	}
	a.queue = append(a.queue, poll)
	a.cond.Broadcast()
	a.mu.Unlock()
}

func (a *archiver) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.queue) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.queue) == 0 {
			a.mu.Unlock()
			return
		}
		poll := a.queue[0]
		a.queue[0] = nil
		a.queue = a.queue[1:]
		a.busy = true
		a.mu.Unlock()

		a.write(poll)

		a.mu.Lock()
		a.busy = false
		a.cond.Broadcast()
		a.mu.Unlock()
	}
}

func (a *archiver) write(poll *models.ArchivedPoll) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.history.Append(ctx, poll); err != nil {
		log.Printf("归档投票失败 [Poll ID: %s]: %v", poll.ID, err)
	} else {
		a.written.Add(1)
		log.Printf("投票已归档 [Poll ID: %s, 总票数: %d]", poll.ID, poll.TotalVotes())
	}

	if a.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			defer cancel()
			if err := a.notifier.NotifyArchived(ctx, poll); err != nil {
				log.Printf("发送归档通知失败 [Poll ID: %s]: %v", poll.ID, err)
			}
		}()
	}
}

// flush waits until every queued poll has been written.
func (a *archiver) flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for len(a.queue) > 0 || a.busy {
		a.cond.Wait()
	}
}

// close drains the queue and stops the worker.
func (a *archiver) close() {
	a.mu.Lock()
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()
	<-a.done
}

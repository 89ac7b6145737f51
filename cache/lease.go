package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DefaultLeaseName is the lock key guarding the single live session.
const DefaultLeaseName = "poll_session:lease"

// Lease keeps one server instance as the owner of the live session.
// The lock is extended every ttl/3 until Release is called; if an
// extension fails onLost is invoked once.
type Lease struct {
	mutex    *redsync.Mutex
	ttl      time.Duration
	onLost   func(error)
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// AcquireLease 获取会话租约，已被占用时返回 ErrLockNotAcquired
func AcquireLease(ctx context.Context, client redis.UniversalClient, name string, ttl time.Duration, onLost func(error)) (*Lease, error) {
	if client == nil {
		return nil, ErrRedisNotAvailable
	}
	if name == "" {
		name = DefaultLeaseName
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	rs := redsync.New(goredis.NewPool(client))
	mutex := rs.NewMutex(name,
		redsync.WithExpiry(ttl),
		redsync.WithTries(3),                         // 最大重试次数
		redsync.WithRetryDelay(100*time.Millisecond), // 重试延迟
		redsync.WithDriftFactor(0.01),                // 时钟漂移因子
	)

	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}

	l := &Lease{
		mutex:  mutex,
		ttl:    ttl,
		onLost: onLost,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go l.keepAlive()
	log.Printf("已获取会话租约: %s", name)
	return l, nil
}

func (l *Lease) keepAlive() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			ok, err := l.mutex.ExtendContext(ctx)
			cancel()
			if err == nil && !ok {
				err = ErrLockNotAcquired
			}
			if err != nil {
				log.Printf("续约会话租约失败: %v", err)
				if l.onLost != nil {
					l.onLost(err)
				}
				return
			}
		}
	}
}

// Release 停止续约并释放锁，可重复调用
func (l *Lease) Release(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stopCh)
		<-l.doneCh
		if _, uerr := l.mutex.UnlockContext(ctx); uerr != nil {
			err = uerr
		}
		log.Println("会话租约已释放")
	})
	return err
}

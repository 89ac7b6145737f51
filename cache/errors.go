package cache

import "errors"

var (
	// ErrRedisNotAvailable Redis不可用错误
	ErrRedisNotAvailable = errors.New("Redis不可用")

	// ErrLockNotAcquired 会话租约已被其他实例持有
	ErrLockNotAcquired = errors.New("无法获取分布式锁")
)

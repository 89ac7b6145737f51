package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"live-polling-backend/models"

	"github.com/redis/go-redis/v9"
)

const (
	historyKeyPrefix = "poll_history:owner:"
	historyCountKey  = "poll_history:count"
	ownerCacheTTL    = 2 * time.Minute
)

// RedisHistory stores each owner's archives as a JSON list. A positive
// maxEntries trims every owner list to its newest entries.
type RedisHistory struct {
	client     redis.Cmdable
	maxEntries int
}

// NewRedisHistory 创建Redis归档存储
func NewRedisHistory(client redis.Cmdable, maxEntries int) *RedisHistory {
	return &RedisHistory{client: client, maxEntries: maxEntries}
}

// Append 追加到主持人的归档列表
func (r *RedisHistory) Append(ctx context.Context, poll *models.ArchivedPoll) error {
	data, err := json.Marshal(poll)
	if err != nil {
		return fmt.Errorf("序列化归档投票失败: %w", err)
	}
	key := historyKeyPrefix + poll.Owner

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.maxEntries > 0 {
		pipe.LTrim(ctx, key, int64(-r.maxEntries), -1)
	}
	pipe.Incr(ctx, historyCountKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入Redis归档失败: %w", err)
	}
	return nil
}

// ByOwner 读取主持人的归档列表
func (r *RedisHistory) ByOwner(ctx context.Context, owner string) ([]models.ArchivedPoll, error) {
	items, err := r.client.LRange(ctx, historyKeyPrefix+owner, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取Redis归档失败: %w", err)
	}
	polls := make([]models.ArchivedPoll, 0, len(items))
	for _, item := range items {
		var p models.ArchivedPoll
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			log.Printf("跳过无法解析的归档记录 [owner: %s]: %v", owner, err)
			continue
		}
		polls = append(polls, p)
	}
	return polls, nil
}

// Count 归档总数
func (r *RedisHistory) Count(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, historyCountKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// CachedHistory fronts a durable store with a per-owner Redis read cache.
// Cache entries are keyed by a per-owner version that every Append bumps, so
// a read racing an Append can only fill a version no later reader uses.
type CachedHistory struct {
	store  HistoryStore
	client redis.Cmdable
}

// NewCachedHistory 创建带缓存的归档存储
func NewCachedHistory(store HistoryStore, client redis.Cmdable) *CachedHistory {
	return &CachedHistory{store: store, client: client}
}

// Append 写入数据库并递增缓存版本
func (c *CachedHistory) Append(ctx context.Context, poll *models.ArchivedPoll) error {
	if err := c.store.Append(ctx, poll); err != nil {
		return err
	}
	if err := c.client.Incr(ctx, c.versionKey(poll.Owner)).Err(); err != nil {
		// 缓存错误只记录日志，不影响返回结果
		log.Printf("更新归档缓存版本失败 [owner: %s]: %v", poll.Owner, err)
	}
	return nil
}

// ByOwner 先查缓存，未命中再查数据库
func (c *CachedHistory) ByOwner(ctx context.Context, owner string) ([]models.ArchivedPoll, error) {
	version, err := c.client.Get(ctx, c.versionKey(owner)).Int64()
	if err != nil && err != redis.Nil {
		log.Printf("读取归档缓存版本失败 [owner: %s]: %v", owner, err)
		return c.store.ByOwner(ctx, owner)
	}

	key := c.cacheKey(owner, version)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var polls []models.ArchivedPoll
		if err := json.Unmarshal(data, &polls); err == nil {
			return polls, nil
		}
	}

	polls, err := c.store.ByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(polls); err == nil {
		if err := c.client.Set(ctx, key, data, ownerCacheTTL).Err(); err != nil {
			log.Printf("设置归档缓存失败 [owner: %s]: %v", owner, err)
		}
	}
	return polls, nil
}

// Count 归档总数
func (c *CachedHistory) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx)
}

func (c *CachedHistory) versionKey(owner string) string {
	return "poll_history:cache_version:" + owner
}

func (c *CachedHistory) cacheKey(owner string, version int64) string {
	return fmt.Sprintf("poll_history:cache:%s:%d", owner, version)
}

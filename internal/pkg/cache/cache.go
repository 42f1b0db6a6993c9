package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "hdnotes:stats:user:"

// ErrMiss 表示缓存未命中。
var ErrMiss = fmt.Errorf("cache miss")

// StatsCache 基于 Redis 的笔记统计缓存。
//
// 统计查询需要多次 COUNT，结果按用户缓存一小段时间；
// 笔记发生增删改时由调用方主动失效。
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache 创建统计缓存。ttl 非法时回落到 30 秒。
func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get 读取用户的统计缓存（JSON 字节）。未命中返回 ErrMiss。
func (c *StatsCache) Get(ctx context.Context, userID uint) ([]byte, error) {
	if c == nil || c.rdb == nil {
		return nil, ErrMiss
	}
	data, err := c.rdb.Get(ctx, userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("stats cache get: %w", err)
	}
	return data, nil
}

// Set 写入用户的统计缓存。
func (c *StatsCache) Set(ctx context.Context, userID uint, data []byte) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, userKey(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats cache set: %w", err)
	}
	return nil
}

// Invalidate 删除用户的统计缓存（笔记增删改后调用）。
func (c *StatsCache) Invalidate(ctx context.Context, userID uint) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("stats cache del: %w", err)
	}
	return nil
}

func userKey(userID uint) string {
	return keyPrefix + strconv.FormatUint(uint64(userID), 10)
}

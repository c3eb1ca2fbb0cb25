// Package cache holds the optional Redis read-through cache for leaderboard
// projections. Every method is a no-op on a nil cache so callers never need
// to branch on whether Redis is configured.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type LeaderboardCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *LeaderboardCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &LeaderboardCache{rdb: rdb, ttl: ttl, logger: logger}
}

func leaderboardKey(yearMonth string) string {
	return "leaderboard:month:" + yearMonth
}

// Get returns the cached serialized leaderboard, or nil on miss.
// Redis failures degrade to a miss; the DB remains the source of truth.
func (c *LeaderboardCache) Get(ctx context.Context, yearMonth string) []byte {
	if c == nil || c.rdb == nil {
		return nil
	}
	payload, err := c.rdb.Get(ctx, leaderboardKey(yearMonth)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.Warn("leaderboard cache get failed", zap.Error(err))
		}
		return nil
	}
	return payload
}

func (c *LeaderboardCache) Set(ctx context.Context, yearMonth string, payload []byte) {
	if c == nil || c.rdb == nil || len(payload) == 0 {
		return
	}
	if err := c.rdb.Set(ctx, leaderboardKey(yearMonth), payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("leaderboard cache set failed", zap.Error(err))
	}
}

// Invalidate drops the month's cached leaderboard after any write that
// changes aggregate rows or the pool (record, settle, cancel).
func (c *LeaderboardCache) Invalidate(ctx context.Context, yearMonth string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, leaderboardKey(yearMonth)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("leaderboard cache invalidate failed", zap.Error(err))
	}
}

// Package cache holds the post-commit, best-effort side of settlement: the
// cached user-state view and denormalized per-game lifetime stats. Failures
// here are logged by callers and never roll back a settlement.
package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

// New connects to redis at addr. An empty addr or a failed ping yields a
// disabled cache whose operations are no-ops, keeping the service available
// without redis.
func New(addr, password string, db int) *Cache {
	if addr == "" {
		return &Cache{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis unavailable, cache disabled: %v", err)
		return &Cache{}
	}
	return &Cache{client: client}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

func userStateKey(userID string) string {
	return "user_state:" + userID
}

func gameStatsKey(gameID string) string {
	return "game_stats:" + gameID
}

// InvalidateUserState drops the cached balance view for a user.
func (c *Cache) InvalidateUserState(ctx context.Context, userID string) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Del(ctx, userStateKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user state: %w", err)
	}
	return nil
}

// RecordBet folds one settled bet into the per-game lifetime counters.
func (c *Cache) RecordBet(ctx context.Context, gameID string, wager, win int64) error {
	if !c.Enabled() {
		return nil
	}
	key := gameStatsKey(gameID)
	pipe := c.client.Pipeline()
	pipe.HIncrBy(ctx, key, "total_bets", 1)
	pipe.HIncrBy(ctx, key, "total_wagered", wager)
	pipe.HIncrBy(ctx, key, "total_won", win)
	if win > 0 {
		pipe.HIncrBy(ctx, key, "total_hits", 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record game stats: %w", err)
	}
	return nil
}

// GameStats returns the denormalized lifetime counters for a game.
func (c *Cache) GameStats(ctx context.Context, gameID string) (map[string]string, error) {
	if !c.Enabled() {
		return map[string]string{}, nil
	}
	stats, err := c.client.HGetAll(ctx, gameStatsKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get game stats: %w", err)
	}
	return stats, nil
}

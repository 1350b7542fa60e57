package redis

import (
	"context"
	"fmt"
	"time"

	"airmonitor/internal/domain/entity"

	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "progress:"
	seenLogsKey       = "alerts:seen"
)

type RedisRepo struct {
	Client *redis.Client
	// ProgressTTL bounds how long a stale progress hash outlives its
	// aggregator.
	ProgressTTL time.Duration
}

func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{Client: client, ProgressTTL: time.Hour}
}

// SetProgress stores the latest reading of an aggregator in the hash
// progress:<interval>.
func (r *RedisRepo) SetProgress(ctx context.Context, p entity.Progress) error {
	key := progressKeyPrefix + p.Interval

	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"cycle":     p.Cycle,
		"reading":   p.Reading,
		"total":     p.Total,
		"percent":   fmt.Sprintf("%.2f", p.Percent()),
		"fine":      p.Fine,
		"coarse":    p.Coarse,
		"timestamp": p.Timestamp.Format(entity.TimestampLayout),
	})
	pipe.Expire(ctx, key, r.ProgressTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set progress %s: %w", p.Interval, err)
	}
	return nil
}

// Claim marks a log as seen. It reports false when another scan already
// claimed it.
func (r *RedisRepo) Claim(ctx context.Context, key string) (bool, error) {
	added, err := r.Client.SAdd(ctx, seenLogsKey, key).Result()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (r *RedisRepo) Release(ctx context.Context, key string) error {
	return r.Client.SRem(ctx, seenLogsKey, key).Err()
}

func (r *RedisRepo) ListSeen(ctx context.Context) ([]string, error) {
	return r.Client.SMembers(ctx, seenLogsKey).Result()
}

// Package cache publishes the latest scan results to Redis.
//
// Every cycle gets a hash at {prefix}cycle:{fiat}:{intermediate}:{token} holding its
// latest status, and the priced cycles of the latest scan are ranked in the sorted set
// {prefix}profit.
package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"triscan/internal/config"
	"triscan/internal/model"
)

// Publisher writes scan reports to Redis.
type Publisher struct {
	rdb    *redis.Client
	prefix string
}

// NewPublisher connects to Redis and pings it.
func NewPublisher(ctx context.Context, cfg config.RedisConfig) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Publisher{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// CycleKey is the hash key holding a cycle's latest result.
func (p *Publisher) CycleKey(c model.Cycle) string {
	return p.prefix + "cycle:" + c.Key()
}

// ProfitKey is the sorted set ranking priced cycles by profit multiple.
func (p *Publisher) ProfitKey() string {
	return p.prefix + "profit"
}

// Publish writes every result of the report in one transaction and replaces the
// ranking with the report's priced cycles, so delisted or unavailable cycles drop out.
func (p *Publisher) Publish(ctx context.Context, report *model.ScanReport) error {
	ts := strconv.FormatInt(report.FinishedAt.UnixMilli(), 10)
	pipe := p.rdb.TxPipeline()
	pipe.Del(ctx, p.ProfitKey())
	for _, res := range report.Results {
		fields := map[string]interface{}{
			"status":  string(res.Status),
			"reason":  res.Reason,
			"scan_id": report.ID,
			"ts_ms":   ts,
			"profit":  "",
		}
		if res.Available() {
			fields["profit"] = strconv.FormatFloat(res.ProfitMultiple, 'f', -1, 64)
			pipe.ZAdd(ctx, p.ProfitKey(), redis.Z{Score: res.ProfitMultiple, Member: res.Cycle.Key()})
		}
		pipe.HSet(ctx, p.CycleKey(res.Cycle), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish scan %s: %w", report.ID, err)
	}
	return nil
}

// Top returns up to n cycle keys with the highest profit multiple.
func (p *Publisher) Top(ctx context.Context, n int64) ([]redis.Z, error) {
	res, err := p.rdb.ZRevRangeWithScores(ctx, p.ProfitKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: top cycles: %w", err)
	}
	return res, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

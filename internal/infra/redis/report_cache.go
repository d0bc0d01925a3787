package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"ai-brand-diagnosis/internal/domain/model"
	"ai-brand-diagnosis/internal/usecase"
)

// Compile-time check
var _ usecase.ReportCache = (*ReportCache)(nil)

// ReportCache stores rendered terminal reports so repeated report fetches
// skip the recompute. A miss is (nil, nil).
type ReportCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewReportCache(client RedisClient, ttl time.Duration) *ReportCache {
	return &ReportCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ReportCache) Get(ctx context.Context, executionID string) (*model.StubReport, error) {
	data, err := c.client.Get(ctx, "report:"+executionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var report model.StubReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *ReportCache) Set(ctx context.Context, executionID string, report *model.StubReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "report:"+executionID, data, c.ttl)
}

func (c *ReportCache) Invalidate(ctx context.Context, executionID string) error {
	return c.client.Del(ctx, "report:"+executionID)
}

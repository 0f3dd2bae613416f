package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jongga-screener/internal/entity"
	"jongga-screener/pkg/common"
	pkgredis "jongga-screener/pkg/redis"
	"jongga-screener/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ErrNoCachedResult is returned when no scan result has been cached yet.
var ErrNoCachedResult = errors.New("no cached screener result")

// ResultCache stores the latest and per-date screener results in Redis so
// the API can serve them without touching the database.
type ResultCache interface {
	Store(ctx context.Context, result *entity.ScreenerResult) error
	Latest(ctx context.Context) (*entity.ScreenerResult, error)
	ByDate(ctx context.Context, date time.Time) (*entity.ScreenerResult, error)
}

type resultCache struct {
	client    *pkgredis.Client
	retention time.Duration
}

// NewResultCache creates a Redis-backed result cache. Dated entries expire
// after the retention period; the latest pointer never expires.
func NewResultCache(client *pkgredis.Client, retention time.Duration) ResultCache {
	if retention == 0 {
		retention = 7 * 24 * time.Hour
	}
	return &resultCache{client: client, retention: retention}
}

func (c *resultCache) Store(ctx context.Context, result *entity.ScreenerResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal screener result: %w", err)
	}

	if err := c.client.Client.Set(ctx, common.RedisKeyLatestResult, payload, 0).Err(); err != nil {
		return fmt.Errorf("cache latest result: %w", err)
	}

	dateKey := common.RedisKeyResultByDate + utils.DateKey(result.Date)
	if err := c.client.Client.Set(ctx, dateKey, payload, c.retention).Err(); err != nil {
		return fmt.Errorf("cache dated result: %w", err)
	}
	return nil
}

func (c *resultCache) Latest(ctx context.Context) (*entity.ScreenerResult, error) {
	return c.get(ctx, common.RedisKeyLatestResult)
}

func (c *resultCache) ByDate(ctx context.Context, date time.Time) (*entity.ScreenerResult, error) {
	return c.get(ctx, common.RedisKeyResultByDate+utils.DateKey(date))
}

func (c *resultCache) get(ctx context.Context, key string) (*entity.ScreenerResult, error) {
	payload, err := c.client.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoCachedResult
	}
	if err != nil {
		return nil, fmt.Errorf("read cached result: %w", err)
	}

	var result entity.ScreenerResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return &result, nil
}

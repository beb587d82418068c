package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"swing-trader/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// BarCache keeps fetched bar series in Redis so back-to-back batch runs do
// not hammer the market data provider. A nil client degrades to a no-op.
type BarCache struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewBarCache(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *BarCache {
	return &BarCache{client: client, ttl: ttl, tracer: tracer}
}

func barKey(ticker, period, interval string) string {
	return fmt.Sprintf("bars:%s:%s:%s", ticker, period, interval)
}

// Get returns the cached series or nil on a miss. A corrupt entry counts as
// a miss and is evicted.
func (c *BarCache) Get(ctx context.Context, ticker, period, interval string) (*domain.BarSeries, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	_, span := c.tracer.Start(ctx, "bar-cache.get")
	defer span.End()

	key := barKey(ticker, period, interval)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var series domain.BarSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		log.Printf("evicting corrupt cache entry %s: %v", key, err)
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &series, nil
}

func (c *BarCache) Set(ctx context.Context, ticker, period, interval string, series domain.BarSeries) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, span := c.tracer.Start(ctx, "bar-cache.set")
	defer span.End()

	raw, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	key := barKey(ticker, period, interval)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *BarCache) Invalidate(ctx context.Context, ticker, period, interval string) error {
	if c == nil || c.client == nil {
		return nil
	}

	_, span := c.tracer.Start(ctx, "bar-cache.invalidate")
	defer span.End()

	return c.client.Del(ctx, barKey(ticker, period, interval)).Err()
}

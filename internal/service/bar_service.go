package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/domain"
	"swing-trader/internal/metrics"
)

type BarProvider interface {
	FetchBars(ctx context.Context, ticker, period, interval string) (domain.BarSeries, error)
}

type SeriesCache interface {
	Get(ctx context.Context, ticker, period, interval string) (*domain.BarSeries, error)
	Set(ctx context.Context, ticker, period, interval string, series domain.BarSeries) error
}

type BarStore interface {
	UpsertBars(ctx context.Context, ticker, interval string, bars []domain.Bar) error
	GetBars(ctx context.Context, ticker, interval string, limit int) ([]domain.Bar, error)
}

// BarService is the single path to market data: Redis first, then the
// provider, persisting whatever the provider returns. Cache and store
// failures degrade to provider round-trips instead of failing the caller.
type BarService struct {
	tracer   trace.Tracer
	provider BarProvider
	cache    SeriesCache
	store    BarStore
	metrics  *metrics.Metrics
}

func NewBarService(
	tracer trace.Tracer,
	provider BarProvider,
	cache SeriesCache,
	store BarStore,
	m *metrics.Metrics,
) *BarService {
	return &BarService{
		tracer:   tracer,
		provider: provider,
		cache:    cache,
		store:    store,
		metrics:  m,
	}
}

// GetSeries returns the bar series for one instrument and window. A warm
// cache short-circuits the provider entirely.
func (s *BarService) GetSeries(ctx context.Context, ticker, period, interval string) (domain.BarSeries, error) {
	_, span := s.tracer.Start(ctx, "bar-service.get-series")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !domain.IsSupportedTicker(ticker) {
		return domain.BarSeries{}, fmt.Errorf("unsupported ticker: %s", ticker)
	}
	if period == "" {
		period = domain.DefaultPeriod
	}
	if interval == "" {
		interval = domain.DefaultInterval
	}
	if !domain.IsSupportedPeriod(period) {
		return domain.BarSeries{}, fmt.Errorf("unsupported period: %s", period)
	}
	if !domain.IsSupportedInterval(interval) {
		return domain.BarSeries{}, fmt.Errorf("unsupported interval: %s", interval)
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, ticker, period, interval)
		if err != nil {
			log.Printf("bar cache read for %s %s %s: %v", ticker, period, interval, err)
		} else if cached != nil {
			s.countCache(true)
			return *cached, nil
		}
	}
	s.countCache(false)

	start := time.Now()
	series, err := s.provider.FetchBars(ctx, ticker, period, interval)
	if s.metrics != nil {
		s.metrics.ProviderFetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("fetch bars for %s %s %s: %w", ticker, period, interval, err)
	}

	if !series.IsEmpty() {
		if s.store != nil {
			if err := s.store.UpsertBars(ctx, ticker, interval, series.Bars); err != nil {
				log.Printf("persist bars for %s %s: %v", ticker, interval, err)
			}
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, ticker, period, interval, series); err != nil {
				log.Printf("bar cache write for %s %s %s: %v", ticker, period, interval, err)
			}
		}
	}
	return series, nil
}

// RecentBars reads the stored tail for an instrument without touching the
// provider. Chronological order, at most limit bars.
func (s *BarService) RecentBars(ctx context.Context, ticker, interval string, limit int) ([]domain.Bar, error) {
	_, span := s.tracer.Start(ctx, "bar-service.recent-bars")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !domain.IsSupportedTicker(ticker) {
		return nil, fmt.Errorf("unsupported ticker: %s", ticker)
	}
	if interval == "" {
		interval = domain.DefaultInterval
	}
	if !domain.IsSupportedInterval(interval) {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	if s.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 120
	}
	return s.store.GetBars(ctx, ticker, interval, limit)
}

func (s *BarService) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.BarCacheHits.Inc()
	} else {
		s.metrics.BarCacheMisses.Inc()
	}
}

package job

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	chartRetryLimit = 20
	chartRetryEvery = 5 * time.Minute
	chartPruneEvery = time.Hour
)

// ChartMaintainer is the slice of the signal service that repairs chart storage.
type ChartMaintainer interface {
	RetryFailedImages(ctx context.Context, limit int) (int, error)
	DeleteExpiredSignalImages(ctx context.Context) (int64, error)
}

// ChartMaintenance keeps stored chart images healthy. Failed renders are
// retried in small batches; rows past their TTL get pruned.
type ChartMaintenance struct {
	tracer     trace.Tracer
	charts     ChartMaintainer
	retryEvery time.Duration
	pruneEvery time.Duration
}

func NewChartMaintenance(tracer trace.Tracer, charts ChartMaintainer) *ChartMaintenance {
	return &ChartMaintenance{
		tracer:     tracer,
		charts:     charts,
		retryEvery: chartRetryEvery,
		pruneEvery: chartPruneEvery,
	}
}

// Start blocks until ctx is cancelled. Retry and prune run on separate
// cadences; a failed pass is logged and retried on the next tick.
func (m *ChartMaintenance) Start(ctx context.Context) {
	if m == nil || m.charts == nil {
		<-ctx.Done()
		return
	}

	log.Println("Chart maintenance starting...")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); every(ctx, m.retryEvery, m.retryFailed) }()
	go func() { defer wg.Done(); every(ctx, m.pruneEvery, m.pruneExpired) }()
	wg.Wait()

	log.Println("Chart maintenance stopped")
}

func (m *ChartMaintenance) retryFailed(ctx context.Context) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "chart-maintenance.retry")
		defer span.End()
	}
	n, err := m.charts.RetryFailedImages(ctx, chartRetryLimit)
	if err != nil {
		log.Printf("chart retry pass failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("chart retry pass rendered %d image(s)", n)
	}
}

func (m *ChartMaintenance) pruneExpired(ctx context.Context) {
	if m.tracer != nil {
		var span trace.Span
		ctx, span = m.tracer.Start(ctx, "chart-maintenance.prune")
		defer span.End()
	}
	n, err := m.charts.DeleteExpiredSignalImages(ctx)
	if err != nil {
		log.Printf("chart prune pass failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("chart prune pass removed %d row(s)", n)
	}
}

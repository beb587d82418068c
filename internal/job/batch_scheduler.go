package job

import (
	"context"
	"log"
	"time"

	"swing-trader/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const defaultScanEvery = 5 * time.Minute

// BatchRunner is the slice of the signal service the scheduler drives.
type BatchRunner interface {
	RunBatch(ctx context.Context, tickers []string, period, interval string) (domain.BatchRun, []domain.SignalRecord, error)
}

// BatchScheduler reruns analysis for the configured universe on a fixed
// cadence so alerts and the websocket feed stay current without manual batch
// requests.
type BatchScheduler struct {
	tracer    trace.Tracer
	runner    BatchRunner
	tickers   []string
	period    string
	interval  string
	scanEvery time.Duration
}

func NewBatchScheduler(tracer trace.Tracer, runner BatchRunner, tickers []string, period, interval string, scanEvery time.Duration) *BatchScheduler {
	if len(tickers) == 0 {
		tickers = domain.DefaultTickers
	}
	if period == "" {
		period = domain.DefaultPeriod
	}
	if interval == "" {
		interval = domain.DefaultInterval
	}
	if scanEvery <= 0 {
		scanEvery = defaultScanEvery
	}
	return &BatchScheduler{
		tracer:    tracer,
		runner:    runner,
		tickers:   tickers,
		period:    period,
		interval:  interval,
		scanEvery: scanEvery,
	}
}

// Start blocks until ctx is cancelled.
func (s *BatchScheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		log.Println("Batch scheduler disabled: no signal service")
		<-ctx.Done()
		return
	}

	log.Println("Batch scheduler starting...")
	every(ctx, s.scanEvery, s.scanOnce)
	log.Println("Batch scheduler stopped")
}

func (s *BatchScheduler) scanOnce(ctx context.Context) {
	if s.tracer != nil {
		var span trace.Span
		ctx, span = s.tracer.Start(ctx, "batch-scheduler.scan")
		defer span.End()
	}
	run, _, err := s.runner.RunBatch(ctx, s.tickers, s.period, s.interval)
	if err != nil {
		log.Printf("scheduled batch failed: %v", err)
		return
	}
	log.Printf("scheduled batch %s: %d/%d tickers succeeded", run.ID, run.Succeeded, run.Requested)
}

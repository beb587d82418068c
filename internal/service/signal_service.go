package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/anomaly"
	"swing-trader/internal/domain"
	"swing-trader/internal/metrics"
	"swing-trader/internal/signal"
)

const (
	signalImageRetryDelay = 5 * time.Minute
	defaultImageRetryMax  = 3
	defaultWorkerCount    = 4
	defaultListLimit      = 50
)

type SeriesSource interface {
	GetSeries(ctx context.Context, ticker, period, interval string) (domain.BarSeries, error)
}

type SignalEngine interface {
	Analyze(series domain.BarSeries) (*domain.SignalRecord, error)
}

type SignalStore interface {
	InsertSignals(ctx context.Context, records []domain.SignalRecord) ([]domain.SignalRecord, error)
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error)
}

type RunStore interface {
	InsertRun(ctx context.Context, run domain.BatchRun) error
	ListRecentRuns(ctx context.Context, limit int) ([]domain.BatchRun, error)
	GetRunItems(ctx context.Context, runID string) ([]domain.BatchItem, error)
}

type SignalImageStore interface {
	UpsertSignalImageReady(
		ctx context.Context,
		signalID int64,
		imageBytes []byte,
		mimeType string,
		width, height int,
		expiresAt time.Time,
	) (*domain.SignalImageRef, error)
	UpsertSignalImageFailure(
		ctx context.Context,
		signalID int64,
		errorText string,
		nextRetryAt time.Time,
		expiresAt time.Time,
	) error
	GetSignalImageBySignalID(ctx context.Context, signalID int64) (*domain.SignalImageData, error)
	ListRetryCandidates(ctx context.Context, limit int, maxRetryCount int) ([]domain.SignalRecord, error)
	DeleteExpiredSignalImages(ctx context.Context) (int64, error)
}

type ChartRenderer interface {
	RenderSignalChart(bars []domain.Bar, record domain.SignalRecord) (*domain.SignalImageData, error)
}

// RecordPublisher receives freshly persisted records. Implementations must
// not block; the batch does not wait for delivery.
type RecordPublisher interface {
	PublishRecords(records []domain.SignalRecord)
}

// RecordPublishers fans PublishRecords out to each non-nil publisher.
type RecordPublishers []RecordPublisher

func (ps RecordPublishers) PublishRecords(records []domain.SignalRecord) {
	for _, p := range ps {
		if p != nil {
			p.PublishRecords(records)
		}
	}
}

type AnomalyScorer interface {
	ScoreAndStore(ctx context.Context, series domain.BarSeries) ([]domain.AnomalyPoint, error)
}

// SignalServiceDeps carries the orchestrator's collaborators. Bars, Engine,
// Signals and Runs are required; the rest degrade to no-ops when nil.
type SignalServiceDeps struct {
	Bars          SeriesSource
	Engine        SignalEngine
	Signals       SignalStore
	Runs          RunStore
	Images        SignalImageStore
	Renderer      ChartRenderer
	Publisher     RecordPublisher
	Anomalies     AnomalyScorer
	Metrics       *metrics.Metrics
	WorkerCount   int
	ImageTTL      time.Duration
	MaxImageRetry int
}

// SignalService runs the fetch-analyze-persist pipeline across instruments
// and serves the persisted output.
type SignalService struct {
	tracer trace.Tracer
	deps   SignalServiceDeps
	now    func() time.Time
}

func NewSignalService(tracer trace.Tracer, deps SignalServiceDeps) *SignalService {
	if deps.WorkerCount <= 0 {
		deps.WorkerCount = defaultWorkerCount
	}
	if deps.ImageTTL <= 0 {
		deps.ImageTTL = 48 * time.Hour
	}
	if deps.MaxImageRetry <= 0 {
		deps.MaxImageRetry = defaultImageRetryMax
	}
	return &SignalService{tracer: tracer, deps: deps, now: time.Now}
}

type tickerOutcome struct {
	item   domain.BatchItem
	record *domain.SignalRecord
	series domain.BarSeries
}

// RunBatch analyzes the requested instruments concurrently and persists every
// produced record under one run ID. Per-instrument problems land in the run's
// items; only persistence failures fail the batch itself. Items and records
// keep the request order regardless of worker scheduling.
func (s *SignalService) RunBatch(ctx context.Context, tickers []string, period, interval string) (domain.BatchRun, []domain.SignalRecord, error) {
	_, span := s.tracer.Start(ctx, "signal-service.run-batch")
	defer span.End()

	if s.deps.Bars == nil || s.deps.Engine == nil || s.deps.Signals == nil {
		return domain.BatchRun{}, nil, fmt.Errorf("signal service is not fully initialized")
	}

	if len(tickers) == 0 {
		tickers = domain.DefaultTickers
	}
	if period == "" {
		period = domain.DefaultPeriod
	}
	if interval == "" {
		interval = domain.DefaultInterval
	}
	if !domain.IsSupportedPeriod(period) {
		return domain.BatchRun{}, nil, fmt.Errorf("unsupported period: %s", period)
	}
	if !domain.IsSupportedInterval(interval) {
		return domain.BatchRun{}, nil, fmt.Errorf("unsupported interval: %s", interval)
	}

	normalized := make([]string, len(tickers))
	for i, t := range tickers {
		normalized[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	run := domain.BatchRun{
		ID:        uuid.NewString(),
		Period:    period,
		Interval:  interval,
		StartedAt: s.now().UTC(),
		Requested: len(normalized),
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.BatchRunsTotal.Inc()
	}

	outcomes := s.analyzeAll(ctx, normalized, period, interval)

	// Persist in request order so returned IDs line up with the outcomes
	// that produced them.
	records := make([]domain.SignalRecord, 0, len(outcomes))
	recordIdx := make([]int, 0, len(outcomes))
	for i, out := range outcomes {
		if out.record != nil {
			out.record.Period = period
			out.record.Interval = interval
			records = append(records, *out.record)
			recordIdx = append(recordIdx, i)
		}
	}

	var persisted []domain.SignalRecord
	if len(records) > 0 {
		var err error
		persisted, err = s.deps.Signals.InsertSignals(ctx, records)
		if err != nil {
			return run, nil, fmt.Errorf("insert signals: %w", err)
		}
		for j := range persisted {
			s.attachImage(ctx, &persisted[j], outcomes[recordIdx[j]].series)
		}
	}

	for i := range outcomes {
		if outcomes[i].item.Status == domain.BatchItemOK {
			run.Succeeded++
		}
		run.Items = append(run.Items, outcomes[i].item)
	}
	run.FinishedAt = s.now().UTC()

	if s.deps.Runs != nil {
		if err := s.deps.Runs.InsertRun(ctx, run); err != nil {
			return run, persisted, fmt.Errorf("insert run: %w", err)
		}
	}

	s.recordBatchMetrics(run, len(persisted))
	s.scoreAnomalies(ctx, outcomes)

	if s.deps.Publisher != nil && len(persisted) > 0 {
		s.deps.Publisher.PublishRecords(persisted)
	}
	return run, persisted, nil
}

// analyzeAll fans the instruments out over the worker pool and collects the
// outcomes back into request order.
func (s *SignalService) analyzeAll(ctx context.Context, tickers []string, period, interval string) []tickerOutcome {
	outcomes := make([]tickerOutcome, len(tickers))

	workers := s.deps.WorkerCount
	if workers > len(tickers) {
		workers = len(tickers)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = s.analyzeTicker(ctx, tickers[idx], period, interval)
			}
		}()
	}
	for i := range tickers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (s *SignalService) analyzeTicker(ctx context.Context, ticker, period, interval string) tickerOutcome {
	item := domain.BatchItem{Ticker: ticker}

	if !domain.IsSupportedTicker(ticker) {
		item.Status = domain.BatchItemError
		item.Detail = "unsupported ticker"
		return tickerOutcome{item: item}
	}

	series, err := s.deps.Bars.GetSeries(ctx, ticker, period, interval)
	if err != nil {
		item.Status = domain.BatchItemError
		item.Detail = err.Error()
		return tickerOutcome{item: item}
	}
	if series.IsEmpty() {
		item.Status = domain.BatchItemNoData
		item.Detail = "provider returned no bars"
		return tickerOutcome{item: item}
	}

	record, err := s.deps.Engine.Analyze(series)
	if err != nil {
		if errors.Is(err, signal.ErrInsufficientHistory) {
			item.Status = domain.BatchItemInsufficientHistory
		} else {
			item.Status = domain.BatchItemError
		}
		item.Detail = err.Error()
		return tickerOutcome{item: item, series: series}
	}

	item.Status = domain.BatchItemOK
	return tickerOutcome{item: item, record: record, series: series}
}

func (s *SignalService) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error) {
	_, span := s.tracer.Start(ctx, "signal-service.list-signals")
	defer span.End()

	if s.deps.Signals == nil {
		return nil, fmt.Errorf("signal service is not fully initialized")
	}

	filter.Ticker = strings.ToUpper(strings.TrimSpace(filter.Ticker))
	if filter.Ticker != "" && !domain.IsSupportedTicker(filter.Ticker) {
		return nil, fmt.Errorf("unsupported ticker: %s", filter.Ticker)
	}
	if filter.Trend != "" && !filter.Trend.IsValid() {
		return nil, fmt.Errorf("invalid trend: %s", filter.Trend)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	return s.deps.Signals.ListSignals(ctx, filter)
}

func (s *SignalService) ListRecentRuns(ctx context.Context, limit int) ([]domain.BatchRun, error) {
	_, span := s.tracer.Start(ctx, "signal-service.list-recent-runs")
	defer span.End()

	if s.deps.Runs == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.deps.Runs.ListRecentRuns(ctx, limit)
}

func (s *SignalService) GetRunItems(ctx context.Context, runID string) ([]domain.BatchItem, error) {
	_, span := s.tracer.Start(ctx, "signal-service.get-run-items")
	defer span.End()

	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if s.deps.Runs == nil {
		return nil, nil
	}
	return s.deps.Runs.GetRunItems(ctx, runID)
}

func (s *SignalService) GetSignalImage(ctx context.Context, signalID int64) (*domain.SignalImageData, error) {
	_, span := s.tracer.Start(ctx, "signal-service.get-signal-image")
	defer span.End()

	if signalID <= 0 {
		return nil, fmt.Errorf("invalid signal id")
	}
	if s.deps.Images == nil {
		return nil, nil
	}
	return s.deps.Images.GetSignalImageBySignalID(ctx, signalID)
}

// RetryFailedImages re-renders charts whose last render failed, oldest first,
// up to limit. Returns how many came back ready.
func (s *SignalService) RetryFailedImages(ctx context.Context, limit int) (int, error) {
	_, span := s.tracer.Start(ctx, "signal-service.retry-failed-images")
	defer span.End()

	if s.deps.Images == nil || s.deps.Renderer == nil || s.deps.Bars == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 20
	}

	candidates, err := s.deps.Images.ListRetryCandidates(ctx, limit, s.deps.MaxImageRetry)
	if err != nil {
		return 0, err
	}

	successes := 0
	for _, rec := range candidates {
		series, err := s.deps.Bars.GetSeries(ctx, rec.Ticker, rec.Period, rec.Interval)
		if err != nil {
			s.recordImageFailure(ctx, rec.ID, fmt.Errorf("get bars for retry: %w", err))
			continue
		}
		if series.IsEmpty() {
			s.recordImageFailure(ctx, rec.ID, fmt.Errorf("no bars available for retry"))
			continue
		}
		if _, err := s.renderAndStoreImage(ctx, rec, series.Bars); err != nil {
			continue
		}
		successes++
	}
	return successes, nil
}

func (s *SignalService) DeleteExpiredSignalImages(ctx context.Context) (int64, error) {
	_, span := s.tracer.Start(ctx, "signal-service.delete-expired-signal-images")
	defer span.End()

	if s.deps.Images == nil {
		return 0, nil
	}
	return s.deps.Images.DeleteExpiredSignalImages(ctx)
}

func (s *SignalService) attachImage(ctx context.Context, rec *domain.SignalRecord, series domain.BarSeries) {
	if s.deps.Images == nil || s.deps.Renderer == nil || series.IsEmpty() {
		return
	}
	ref, err := s.renderAndStoreImage(ctx, *rec, series.Bars)
	if err != nil {
		return
	}
	rec.Image = ref
}

func (s *SignalService) renderAndStoreImage(
	ctx context.Context,
	rec domain.SignalRecord,
	bars []domain.Bar,
) (*domain.SignalImageRef, error) {
	rendered, err := s.deps.Renderer.RenderSignalChart(bars, rec)
	if err != nil {
		s.recordImageFailure(ctx, rec.ID, err)
		return nil, err
	}

	expiresAt := s.now().UTC().Add(s.deps.ImageTTL)
	ref, err := s.deps.Images.UpsertSignalImageReady(
		ctx,
		rec.ID,
		rendered.Bytes,
		rendered.Ref.MimeType,
		rendered.Ref.Width,
		rendered.Ref.Height,
		expiresAt,
	)
	if err != nil {
		s.recordImageFailure(ctx, rec.ID, fmt.Errorf("persist image: %w", err))
		return nil, err
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ImageRendersTotal.WithLabelValues("ok").Inc()
	}
	return ref, nil
}

func (s *SignalService) recordImageFailure(ctx context.Context, signalID int64, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ImageRendersTotal.WithLabelValues("failed").Inc()
	}
	if s.deps.Images == nil || signalID <= 0 {
		return
	}
	expiresAt := s.now().UTC().Add(s.deps.ImageTTL)
	nextRetry := s.now().UTC().Add(signalImageRetryDelay)
	if upsertErr := s.deps.Images.UpsertSignalImageFailure(ctx, signalID, err.Error(), nextRetry, expiresAt); upsertErr != nil {
		log.Printf("signal image failure upsert error for signal %d: %v", signalID, upsertErr)
	}
}

func (s *SignalService) recordBatchMetrics(run domain.BatchRun, persisted int) {
	if s.deps.Metrics == nil {
		return
	}
	s.deps.Metrics.BatchDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	s.deps.Metrics.SignalRecordsTotal.Add(float64(persisted))
	for _, item := range run.Items {
		s.deps.Metrics.BatchItemsTotal.WithLabelValues(string(item.Status)).Inc()
	}
}

// scoreAnomalies runs the isolation forest over every series the batch
// fetched. Strictly side telemetry: failures are logged and swallowed.
func (s *SignalService) scoreAnomalies(ctx context.Context, outcomes []tickerOutcome) {
	if s.deps.Anomalies == nil {
		return
	}
	for _, out := range outcomes {
		if out.series.IsEmpty() {
			continue
		}
		flagged, err := s.deps.Anomalies.ScoreAndStore(ctx, out.series)
		if err != nil {
			if !errors.Is(err, anomaly.ErrInsufficientHistory) {
				log.Printf("anomaly scoring for %s: %v", out.series.Ticker, err)
			}
			continue
		}
		if s.deps.Metrics != nil && len(flagged) > 0 {
			s.deps.Metrics.AnomaliesFlaggedTotal.Add(float64(len(flagged)))
		}
	}
}

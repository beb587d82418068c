package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/domain"
	"swing-trader/internal/signal"
)

func testSeries(ticker string, n int) domain.BarSeries {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		price := 100 + float64(i)
		bars[i] = domain.Bar{
			Ts:     start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.5,
			Volume: 1_000_000,
		}
	}
	return domain.BarSeries{Ticker: ticker, Bars: bars}
}

func newTestService(deps SignalServiceDeps) *SignalService {
	return NewSignalService(trace.NewNoopTracerProvider().Tracer("test"), deps)
}

func TestSignalServiceRunBatchClassifiesAndKeepsRequestOrder(t *testing.T) {
	source := &stubSeriesSource{
		series: map[string]domain.BarSeries{
			"AAPL": testSeries("AAPL", 60),
			"MSFT": {Ticker: "MSFT"},
			"TSLA": testSeries("TSLA", 5),
		},
		errs: map[string]error{
			"GOOGL": errors.New("provider unreachable"),
		},
	}
	engine := &stubEngine{
		errs: map[string]error{
			"TSLA": fmt.Errorf("indicators TSLA: %w", signal.ErrInsufficientHistory),
		},
	}
	signals := &stubSignalStore{}
	runs := &stubRunStore{}
	publisher := &stubPublisher{}

	svc := newTestService(SignalServiceDeps{
		Bars:      source,
		Engine:    engine,
		Signals:   signals,
		Runs:      runs,
		Publisher: publisher,
	})

	run, generated, err := svc.RunBatch(context.Background(), []string{"aapl", "FAKE", "MSFT", "TSLA", "GOOGL"}, "", "")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}

	if run.ID == "" {
		t.Fatal("expected a run id")
	}
	if run.Period != domain.DefaultPeriod || run.Interval != domain.DefaultInterval {
		t.Fatalf("expected defaulted window, got %s %s", run.Period, run.Interval)
	}
	if run.Requested != 5 || run.Succeeded != 1 {
		t.Fatalf("expected 5 requested / 1 succeeded, got %d / %d", run.Requested, run.Succeeded)
	}

	wantStatuses := []domain.BatchStatus{
		domain.BatchItemOK,
		domain.BatchItemError,
		domain.BatchItemNoData,
		domain.BatchItemInsufficientHistory,
		domain.BatchItemError,
	}
	wantTickers := []string{"AAPL", "FAKE", "MSFT", "TSLA", "GOOGL"}
	if len(run.Items) != len(wantStatuses) {
		t.Fatalf("expected %d items, got %d", len(wantStatuses), len(run.Items))
	}
	for i, item := range run.Items {
		if item.Ticker != wantTickers[i] {
			t.Errorf("item %d: expected ticker %s, got %s", i, wantTickers[i], item.Ticker)
		}
		if item.Status != wantStatuses[i] {
			t.Errorf("item %d: expected status %s, got %s", i, wantStatuses[i], item.Status)
		}
	}

	if len(signals.inserted) != 1 || signals.inserted[0].Ticker != "AAPL" {
		t.Fatalf("expected one persisted AAPL record, got %+v", signals.inserted)
	}
	if signals.inserted[0].Period != domain.DefaultPeriod || signals.inserted[0].Interval != domain.DefaultInterval {
		t.Fatalf("expected window stamped onto record, got %s %s", signals.inserted[0].Period, signals.inserted[0].Interval)
	}
	if len(runs.runs) != 1 || runs.runs[0].ID != run.ID {
		t.Fatalf("expected the run persisted, got %+v", runs.runs)
	}
	if len(publisher.published) != 1 || publisher.published[0].ID == 0 {
		t.Fatalf("expected the persisted record published with its id, got %+v", publisher.published)
	}
	if len(generated) != 1 || generated[0].Ticker != "AAPL" || generated[0].ID == 0 {
		t.Fatalf("expected the generated record returned with its id, got %+v", generated)
	}
}

func TestSignalServiceRunBatchDefaultsUniverse(t *testing.T) {
	source := &stubSeriesSource{series: map[string]domain.BarSeries{}}
	for _, tk := range domain.DefaultTickers {
		source.series[tk] = testSeries(tk, 60)
	}
	signals := &stubSignalStore{}

	svc := newTestService(SignalServiceDeps{
		Bars:    source,
		Engine:  &stubEngine{},
		Signals: signals,
		Runs:    &stubRunStore{},
	})

	run, _, err := svc.RunBatch(context.Background(), nil, "3mo", "1d")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if run.Requested != len(domain.DefaultTickers) || run.Succeeded != len(domain.DefaultTickers) {
		t.Fatalf("expected full default universe, got %d/%d", run.Succeeded, run.Requested)
	}
	if len(signals.inserted) != len(domain.DefaultTickers) {
		t.Fatalf("expected %d records, got %d", len(domain.DefaultTickers), len(signals.inserted))
	}
	// Insert order must follow the universe order.
	for i, tk := range domain.DefaultTickers {
		if signals.inserted[i].Ticker != tk {
			t.Fatalf("record %d: expected %s, got %s", i, tk, signals.inserted[i].Ticker)
		}
	}
}

func TestSignalServiceRunBatchRejectsBadWindow(t *testing.T) {
	svc := newTestService(SignalServiceDeps{
		Bars:    &stubSeriesSource{},
		Engine:  &stubEngine{},
		Signals: &stubSignalStore{},
	})

	if _, _, err := svc.RunBatch(context.Background(), []string{"AAPL"}, "2y", ""); err == nil {
		t.Fatal("expected unsupported period error")
	}
	if _, _, err := svc.RunBatch(context.Background(), []string{"AAPL"}, "", "5m"); err == nil {
		t.Fatal("expected unsupported interval error")
	}
}

func TestSignalServiceRunBatchAttachesImages(t *testing.T) {
	source := &stubSeriesSource{series: map[string]domain.BarSeries{
		"AAPL": testSeries("AAPL", 60),
		"MSFT": testSeries("MSFT", 60),
	}}
	images := &stubImageStore{}
	renderer := &stubRenderer{failFor: map[string]bool{"MSFT": true}}

	svc := newTestService(SignalServiceDeps{
		Bars:     source,
		Engine:   &stubEngine{},
		Signals:  &stubSignalStore{},
		Runs:     &stubRunStore{},
		Images:   images,
		Renderer: renderer,
	})

	_, _, err := svc.RunBatch(context.Background(), []string{"AAPL", "MSFT"}, "", "")
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if images.readyCalls != 1 {
		t.Fatalf("expected 1 ready upsert, got %d", images.readyCalls)
	}
	if images.failureCalls != 1 {
		t.Fatalf("expected 1 failure upsert, got %d", images.failureCalls)
	}
}

func TestSignalServiceRunBatchInsertFailureFailsBatch(t *testing.T) {
	source := &stubSeriesSource{series: map[string]domain.BarSeries{"AAPL": testSeries("AAPL", 60)}}
	svc := newTestService(SignalServiceDeps{
		Bars:    source,
		Engine:  &stubEngine{},
		Signals: &stubSignalStore{insertErr: errors.New("db down")},
		Runs:    &stubRunStore{},
	})

	if _, _, err := svc.RunBatch(context.Background(), []string{"AAPL"}, "", ""); err == nil {
		t.Fatal("expected insert failure to fail the batch")
	}
}

func TestSignalServiceRunBatchScoresFetchedSeries(t *testing.T) {
	source := &stubSeriesSource{series: map[string]domain.BarSeries{
		"AAPL": testSeries("AAPL", 60),
		"TSLA": testSeries("TSLA", 5),
	}}
	engine := &stubEngine{errs: map[string]error{
		"TSLA": fmt.Errorf("indicators TSLA: %w", signal.ErrInsufficientHistory),
	}}
	scorer := &stubAnomalyScorer{}

	svc := newTestService(SignalServiceDeps{
		Bars:      source,
		Engine:    engine,
		Signals:   &stubSignalStore{},
		Runs:      &stubRunStore{},
		Anomalies: scorer,
	})

	if _, _, err := svc.RunBatch(context.Background(), []string{"AAPL", "TSLA"}, "", ""); err != nil {
		t.Fatalf("run batch: %v", err)
	}
	// Every fetched non-empty series is scored, even ones the engine rejected.
	if len(scorer.scored) != 2 {
		t.Fatalf("expected 2 scored series, got %d", len(scorer.scored))
	}
}

func TestSignalServiceListSignalsValidatesFilter(t *testing.T) {
	signals := &stubSignalStore{}
	svc := newTestService(SignalServiceDeps{
		Bars:    &stubSeriesSource{},
		Engine:  &stubEngine{},
		Signals: signals,
	})

	if _, err := svc.ListSignals(context.Background(), domain.SignalFilter{Ticker: "FAKE"}); err == nil {
		t.Fatal("expected unsupported ticker error")
	}
	if _, err := svc.ListSignals(context.Background(), domain.SignalFilter{Trend: "Sideways"}); err == nil {
		t.Fatal("expected invalid trend error")
	}

	if _, err := svc.ListSignals(context.Background(), domain.SignalFilter{Ticker: "aapl"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signals.lastFilter.Ticker != "AAPL" {
		t.Fatalf("expected ticker normalized, got %q", signals.lastFilter.Ticker)
	}
	if signals.lastFilter.Limit != defaultListLimit {
		t.Fatalf("expected default limit %d, got %d", defaultListLimit, signals.lastFilter.Limit)
	}
}

func TestSignalServiceGetSignalImage(t *testing.T) {
	svc := newTestService(SignalServiceDeps{
		Bars:    &stubSeriesSource{},
		Engine:  &stubEngine{},
		Signals: &stubSignalStore{},
	})
	if _, err := svc.GetSignalImage(context.Background(), 0); err == nil {
		t.Fatal("expected invalid id error")
	}
	data, err := svc.GetSignalImage(context.Background(), 7)
	if err != nil || data != nil {
		t.Fatalf("expected nil image without an image store, got %v %v", data, err)
	}
}

func TestSignalServiceRetryFailedImages(t *testing.T) {
	source := &stubSeriesSource{
		series: map[string]domain.BarSeries{"AAPL": testSeries("AAPL", 60)},
		errs:   map[string]error{"MSFT": errors.New("provider unreachable")},
	}
	images := &stubImageStore{
		retryCandidates: []domain.SignalRecord{
			{ID: 1, Ticker: "AAPL", Period: "1mo", Interval: "1d"},
			{ID: 2, Ticker: "MSFT", Period: "1mo", Interval: "1d"},
		},
	}
	svc := newTestService(SignalServiceDeps{
		Bars:     source,
		Engine:   &stubEngine{},
		Signals:  &stubSignalStore{},
		Images:   images,
		Renderer: &stubRenderer{},
	})

	n, err := svc.RetryFailedImages(context.Background(), 10)
	if err != nil {
		t.Fatalf("retry failed images: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 success, got %d", n)
	}
	if images.failureCalls != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", images.failureCalls)
	}
}

func TestRecordPublishersFanOut(t *testing.T) {
	t.Parallel()

	first := &stubPublisher{}
	second := &stubPublisher{}
	group := RecordPublishers{first, nil, second}

	group.PublishRecords([]domain.SignalRecord{{Ticker: "AAPL"}})

	if len(first.published) != 1 || len(second.published) != 1 {
		t.Fatalf("expected both publishers to receive the record, got %d/%d", len(first.published), len(second.published))
	}
}

// ---- stubs ----

type stubSeriesSource struct {
	mu     sync.Mutex
	series map[string]domain.BarSeries
	errs   map[string]error
	calls  []string
}

func (s *stubSeriesSource) GetSeries(_ context.Context, ticker, _, _ string) (domain.BarSeries, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ticker)
	s.mu.Unlock()
	if err, ok := s.errs[ticker]; ok {
		return domain.BarSeries{}, err
	}
	return s.series[ticker], nil
}

type stubEngine struct {
	errs map[string]error
}

func (e *stubEngine) Analyze(series domain.BarSeries) (*domain.SignalRecord, error) {
	if err, ok := e.errs[series.Ticker]; ok {
		return nil, err
	}
	return &domain.SignalRecord{
		Ticker:      series.Ticker,
		GeneratedAt: time.Unix(0, 0).UTC(),
		Pattern:     domain.NoneLabel,
		Trend:       domain.TrendNeutral,
		Probability: domain.ProbabilityBase,
		Signals:     domain.NoneLabel,
	}, nil
}

type stubSignalStore struct {
	mu         sync.Mutex
	inserted   []domain.SignalRecord
	insertErr  error
	listOut    []domain.SignalRecord
	lastFilter domain.SignalFilter
}

func (s *stubSignalStore) InsertSignals(_ context.Context, records []domain.SignalRecord) ([]domain.SignalRecord, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SignalRecord, len(records))
	for i, r := range records {
		r.ID = int64(len(s.inserted) + 1)
		s.inserted = append(s.inserted, r)
		out[i] = r
	}
	return out, nil
}

func (s *stubSignalStore) ListSignals(_ context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error) {
	s.lastFilter = filter
	return s.listOut, nil
}

type stubRunStore struct {
	mu   sync.Mutex
	runs []domain.BatchRun
}

func (s *stubRunStore) InsertRun(_ context.Context, run domain.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *stubRunStore) ListRecentRuns(_ context.Context, _ int) ([]domain.BatchRun, error) {
	return s.runs, nil
}

func (s *stubRunStore) GetRunItems(_ context.Context, runID string) ([]domain.BatchItem, error) {
	for _, r := range s.runs {
		if r.ID == runID {
			return r.Items, nil
		}
	}
	return nil, nil
}

type stubImageStore struct {
	mu              sync.Mutex
	readyCalls      int
	failureCalls    int
	retryCandidates []domain.SignalRecord
}

func (s *stubImageStore) UpsertSignalImageReady(
	_ context.Context, signalID int64, _ []byte, mimeType string, width, height int, expiresAt time.Time,
) (*domain.SignalImageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyCalls++
	return &domain.SignalImageRef{
		ImageID: signalID, MimeType: mimeType, Width: width, Height: height, ExpiresAt: expiresAt,
	}, nil
}

func (s *stubImageStore) UpsertSignalImageFailure(_ context.Context, _ int64, _ string, _, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCalls++
	return nil
}

func (s *stubImageStore) GetSignalImageBySignalID(_ context.Context, _ int64) (*domain.SignalImageData, error) {
	return nil, nil
}

func (s *stubImageStore) ListRetryCandidates(_ context.Context, _ int, _ int) ([]domain.SignalRecord, error) {
	return s.retryCandidates, nil
}

func (s *stubImageStore) DeleteExpiredSignalImages(_ context.Context) (int64, error) {
	return 0, nil
}

type stubRenderer struct {
	failFor map[string]bool
}

func (r *stubRenderer) RenderSignalChart(_ []domain.Bar, record domain.SignalRecord) (*domain.SignalImageData, error) {
	if r.failFor[record.Ticker] {
		return nil, errors.New("render failed")
	}
	return &domain.SignalImageData{
		Ref:   domain.SignalImageRef{MimeType: "image/png", Width: 960, Height: 640},
		Bytes: []byte{0x89, 'P', 'N', 'G'},
	}, nil
}

type stubPublisher struct {
	mu        sync.Mutex
	published []domain.SignalRecord
}

func (p *stubPublisher) PublishRecords(records []domain.SignalRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, records...)
}

type stubAnomalyScorer struct {
	mu     sync.Mutex
	scored []string
}

func (a *stubAnomalyScorer) ScoreAndStore(_ context.Context, series domain.BarSeries) ([]domain.AnomalyPoint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scored = append(a.scored, series.Ticker)
	return nil, nil
}

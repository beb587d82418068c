package anomaly

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/domain"
)

// Defaults applied when a Config field is zero.
const (
	DefaultThreshold  = 0.62
	DefaultNumTrees   = 200
	DefaultSampleSize = 256

	minTrainingVectors = 16
)

// ErrInsufficientHistory is returned when a series has too few bars to build
// a usable training matrix. Callers treat it as a skip, not a failure.
var ErrInsufficientHistory = errors.New("not enough bars for anomaly scoring")

type PointStore interface {
	InsertAnomalies(ctx context.Context, points []domain.AnomalyPoint) error
}

type Config struct {
	Threshold  float64
	NumTrees   int
	SampleSize int
}

// Service scores bar series with an isolation forest fitted per call. It is
// telemetry on the side of signal generation: nothing downstream depends on
// its output.
type Service struct {
	tracer trace.Tracer
	store  PointStore
	cfg    Config
}

func NewService(tracer trace.Tracer, store PointStore, cfg Config) *Service {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.NumTrees <= 0 {
		cfg.NumTrees = DefaultNumTrees
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	return &Service{tracer: tracer, store: store, cfg: cfg}
}

// ScoreSeries fits a forest on the series' own history and returns one point
// per scoreable bar, flagged when the score clears the threshold.
func (s *Service) ScoreSeries(ctx context.Context, series domain.BarSeries) ([]domain.AnomalyPoint, error) {
	_, span := s.tracer.Start(ctx, "anomaly-service.score-series")
	defer span.End()

	if err := series.Validate(); err != nil {
		return nil, err
	}

	vectors, indices := buildFeatures(series.Bars)
	if len(vectors) < minTrainingVectors {
		return nil, ErrInsufficientHistory
	}

	f, err := fitForest(vectors, s.cfg.NumTrees, s.cfg.SampleSize, s.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("fitting forest for %s: %w", series.Ticker, err)
	}

	scores := f.scoreBatch(vectors)
	points := make([]domain.AnomalyPoint, len(scores))
	for i, score := range scores {
		bar := series.Bars[indices[i]]
		points[i] = domain.AnomalyPoint{
			Ticker:  series.Ticker,
			Ts:      bar.Ts,
			Score:   score,
			Flagged: score >= s.cfg.Threshold,
		}
	}
	return points, nil
}

// ScoreAndStore persists the flagged subset and returns it. The anomalies
// table only ever holds bars that cleared the threshold.
func (s *Service) ScoreAndStore(ctx context.Context, series domain.BarSeries) ([]domain.AnomalyPoint, error) {
	points, err := s.ScoreSeries(ctx, series)
	if err != nil {
		return nil, err
	}

	flagged := make([]domain.AnomalyPoint, 0, len(points))
	for _, p := range points {
		if p.Flagged {
			flagged = append(flagged, p)
		}
	}
	if len(flagged) == 0 {
		return nil, nil
	}
	if s.store != nil {
		if err := s.store.InsertAnomalies(ctx, flagged); err != nil {
			return nil, fmt.Errorf("storing anomalies for %s: %w", series.Ticker, err)
		}
	}
	return flagged, nil
}

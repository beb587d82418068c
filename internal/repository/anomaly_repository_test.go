package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

func TestAnomalyInsertAnomaliesBatchesStatements(t *testing.T) {
	batchResults := &anomalyStubBatchResults{}
	pool := &anomalyStubPool{batchResults: batchResults}
	repo := NewAnomalyRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	points := []domain.AnomalyPoint{
		{Ticker: "AAPL", Ts: time.Unix(0, 0).UTC(), Score: 0.71, Flagged: true},
		{Ticker: "AAPL", Ts: time.Unix(86400, 0).UTC(), Score: 0.33, Flagged: false},
	}
	if err := repo.InsertAnomalies(context.Background(), points); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pool.queuedBatch == nil || pool.queuedBatch.Len() != len(points) {
		t.Fatalf("expected batch of size %d", len(points))
	}
	if batchResults.execCalls != len(points) {
		t.Fatalf("expected %d Exec calls, got %d", len(points), batchResults.execCalls)
	}
}

func TestAnomalyListRecentReturnsRows(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rows := [][]any{{
		"TSLA", now, 0.68, true,
	}}
	pool := &anomalyStubPool{rowsData: rows}
	repo := NewAnomalyRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	points, err := repo.ListRecent(context.Background(), "TSLA", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 1 || points[0].Ticker != "TSLA" || !points[0].Flagged {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestAnomalyListRecentAllTickers(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	rows := [][]any{
		{"TSLA", now, 0.68, true},
		{"AAPL", now.Add(-time.Hour), 0.21, false},
	}
	pool := &anomalyStubPool{rowsData: rows}
	repo := NewAnomalyRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))

	points, err := repo.ListRecent(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
}

type anomalyStubPool struct {
	batchResults pgx.BatchResults
	queuedBatch  *pgx.Batch
	rowsData     [][]any
}

func (s *anomalyStubPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *anomalyStubPool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	s.queuedBatch = b
	if s.batchResults != nil {
		return s.batchResults
	}
	return &anomalyStubBatchResults{}
}

func (s *anomalyStubPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if s.rowsData == nil {
		return &anomalyStubRows{}, nil
	}
	dataCopy := make([][]any, len(s.rowsData))
	for i := range s.rowsData {
		row := make([]any, len(s.rowsData[i]))
		copy(row, s.rowsData[i])
		dataCopy[i] = row
	}
	return &anomalyStubRows{data: dataCopy}, nil
}

func (s *anomalyStubPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &stubRow{}
}

type stubRow struct{}

func (*stubRow) Scan(dest ...any) error { return nil }

type anomalyStubBatchResults struct {
	execCalls int
}

func (s *anomalyStubBatchResults) Exec() (pgconn.CommandTag, error) {
	s.execCalls++
	return pgconn.CommandTag{}, nil
}

func (s *anomalyStubBatchResults) Query() (pgx.Rows, error) { return &anomalyStubRows{}, nil }

func (s *anomalyStubBatchResults) QueryRow() pgx.Row { return &stubRow{} }

func (s *anomalyStubBatchResults) Close() error { return nil }

type anomalyStubRows struct {
	data [][]any
	idx  int
}

func (r *anomalyStubRows) Close() {}

func (r *anomalyStubRows) Err() error { return nil }

func (r *anomalyStubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *anomalyStubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *anomalyStubRows) Next() bool {
	if len(r.data) == 0 || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *anomalyStubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return fmt.Errorf("invalid scan index")
	}
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		case *float64:
			*ptr = row[i].(float64)
		case *bool:
			*ptr = row[i].(bool)
		case *time.Time:
			*ptr = row[i].(time.Time)
		default:
			return fmt.Errorf("unsupported dest type %T", d)
		}
	}
	return nil
}

func (r *anomalyStubRows) Values() ([]any, error) { return nil, nil }

func (r *anomalyStubRows) RawValues() [][]byte { return nil }

func (r *anomalyStubRows) Conn() *pgx.Conn { return nil }

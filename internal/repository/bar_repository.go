package repository

import (
	"context"
	"time"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type BarRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewBarRepository(pool PgxPool, tracer trace.Tracer) *BarRepository {
	return &BarRepository{pool: pool, tracer: tracer}
}

func (r *BarRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "bar-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bars (
    ticker TEXT NOT NULL,
    interval TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    open DOUBLE PRECISION NOT NULL,
    high DOUBLE PRECISION NOT NULL,
    low DOUBLE PRECISION NOT NULL,
    close DOUBLE PRECISION NOT NULL,
    volume DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (ticker, interval, ts)
)`)
	return err
}

func (r *BarRepository) UpsertBars(ctx context.Context, ticker, interval string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "bar-repo.upsert-bars")
	defer span.End()

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(
			`INSERT INTO bars (ticker, interval, ts, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (ticker, interval, ts) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			ticker, interval, b.Ts.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetBars returns the most recent limit bars in chronological order, which is
// what the analysis engine expects.
func (r *BarRepository) GetBars(ctx context.Context, ticker, interval string, limit int) ([]domain.Bar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ts, open, high, low, close, volume FROM (
		     SELECT ts, open, high, low, close, volume
		     FROM bars
		     WHERE ticker = $1 AND interval = $2
		     ORDER BY ts DESC
		     LIMIT $3
		 ) latest
		 ORDER BY ts ASC`,
		ticker, interval, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

func (r *BarRepository) GetBarsInRange(ctx context.Context, ticker, interval string, from, to time.Time) ([]domain.Bar, error) {
	_, span := r.tracer.Start(ctx, "bar-repo.get-bars-in-range")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ts, open, high, low, close, volume
		 FROM bars
		 WHERE ticker = $1 AND interval = $2 AND ts >= $3 AND ts <= $4
		 ORDER BY ts ASC`,
		ticker, interval, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

func scanBars(rows pgx.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Ts = b.Ts.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

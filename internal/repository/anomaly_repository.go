package repository

import (
	"context"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type AnomalyRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewAnomalyRepository(pool PgxPool, tracer trace.Tracer) *AnomalyRepository {
	return &AnomalyRepository{pool: pool, tracer: tracer}
}

func (r *AnomalyRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "anomaly-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS anomalies (
    id BIGSERIAL PRIMARY KEY,
    ticker TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    flagged BOOLEAN NOT NULL,
    UNIQUE (ticker, ts)
);
CREATE INDEX IF NOT EXISTS idx_anomalies_ticker_time ON anomalies (ticker, ts DESC)`)
	return err
}

func (r *AnomalyRepository) InsertAnomalies(ctx context.Context, points []domain.AnomalyPoint) error {
	if len(points) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "anomaly-repo.insert-anomalies")
	defer span.End()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(
			`INSERT INTO anomalies (ticker, ts, score, flagged)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (ticker, ts) DO UPDATE SET
			     score = EXCLUDED.score,
			     flagged = EXCLUDED.flagged`,
			p.Ticker, p.Ts.UTC(), p.Score, p.Flagged,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range points {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *AnomalyRepository) ListRecent(ctx context.Context, ticker string, limit int) ([]domain.AnomalyPoint, error) {
	_, span := r.tracer.Start(ctx, "anomaly-repo.list-recent")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var (
		rows pgx.Rows
		err  error
	)
	if ticker != "" {
		rows, err = r.pool.Query(ctx,
			`SELECT ticker, ts, score, flagged
			 FROM anomalies
			 WHERE ticker = $1
			 ORDER BY ts DESC
			 LIMIT $2`,
			ticker, limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT ticker, ts, score, flagged
			 FROM anomalies
			 ORDER BY ts DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.AnomalyPoint
	for rows.Next() {
		var p domain.AnomalyPoint
		if err := rows.Scan(&p.Ticker, &p.Ts, &p.Score, &p.Flagged); err != nil {
			return nil, err
		}
		p.Ts = p.Ts.UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

package repository

import (
	"context"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

type RunRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRunRepository(pool PgxPool, tracer trace.Tracer) *RunRepository {
	return &RunRepository{pool: pool, tracer: tracer}
}

func (r *RunRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "run-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS batch_runs (
    id UUID PRIMARY KEY,
    period TEXT NOT NULL,
    interval TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    requested INT NOT NULL,
    succeeded INT NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_run_items (
    run_id UUID NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
    position INT NOT NULL,
    ticker TEXT NOT NULL,
    status TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
)`)
	return err
}

// InsertRun records a finished batch together with its per-ticker outcomes.
// Item position preserves the request order.
func (r *RunRepository) InsertRun(ctx context.Context, run domain.BatchRun) error {
	_, span := r.tracer.Start(ctx, "run-repo.insert-run")
	defer span.End()

	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO batch_runs (id, period, interval, started_at, finished_at, requested, succeeded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Period, run.Interval,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Requested, run.Succeeded,
	)
	for i, item := range run.Items {
		batch.Queue(
			`INSERT INTO batch_run_items (run_id, position, ticker, status, detail)
			 VALUES ($1, $2, $3, $4, $5)`,
			run.ID, i, item.Ticker, string(item.Status), item.Detail,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < 1+len(run.Items); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RunRepository) ListRecentRuns(ctx context.Context, limit int) ([]domain.BatchRun, error) {
	_, span := r.tracer.Start(ctx, "run-repo.list-recent-runs")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, period, interval, started_at, finished_at, requested, succeeded
		 FROM batch_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.BatchRun
	for rows.Next() {
		var run domain.BatchRun
		if err := rows.Scan(
			&run.ID, &run.Period, &run.Interval,
			&run.StartedAt, &run.FinishedAt,
			&run.Requested, &run.Succeeded,
		); err != nil {
			return nil, err
		}
		run.StartedAt = run.StartedAt.UTC()
		run.FinishedAt = run.FinishedAt.UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) GetRunItems(ctx context.Context, runID string) ([]domain.BatchItem, error) {
	_, span := r.tracer.Start(ctx, "run-repo.get-run-items")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ticker, status, detail
		 FROM batch_run_items
		 WHERE run_id = $1
		 ORDER BY position ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.BatchItem
	for rows.Next() {
		var item domain.BatchItem
		var status string
		if err := rows.Scan(&item.Ticker, &status, &item.Detail); err != nil {
			return nil, err
		}
		item.Status = domain.BatchStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

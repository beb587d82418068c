package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// signalColumns is the SELECT list matching scanSignalRecord, with signals
// aliased as s.
const signalColumns = `s.id, s.ticker, s.period, s.interval, s.generated_at, s.pattern, s.trend,
       s.rsi, s.macd, s.atr, s.volume, s.gap, s.current_price,
       s.upper_target, s.lower_target, s.probability, s.signals_text`

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS signals (
    id BIGSERIAL PRIMARY KEY,
    ticker TEXT NOT NULL,
    period TEXT NOT NULL,
    interval TEXT NOT NULL,
    generated_at TIMESTAMPTZ NOT NULL,
    pattern TEXT NOT NULL,
    trend TEXT NOT NULL,
    rsi DOUBLE PRECISION NOT NULL,
    macd DOUBLE PRECISION NOT NULL,
    atr DOUBLE PRECISION NOT NULL,
    volume BIGINT NOT NULL,
    gap DOUBLE PRECISION NOT NULL,
    current_price DOUBLE PRECISION NOT NULL,
    upper_target DOUBLE PRECISION NOT NULL,
    lower_target DOUBLE PRECISION NOT NULL,
    probability SMALLINT NOT NULL,
    signals_text TEXT NOT NULL,
    UNIQUE (ticker, period, interval, generated_at)
);
CREATE INDEX IF NOT EXISTS idx_signals_ticker_time ON signals (ticker, generated_at DESC)`)
	return err
}

// InsertSignals persists the records and returns copies with database ids
// assigned. Re-running a batch for the same ticker and timestamp overwrites
// the previous row instead of duplicating it.
func (r *SignalRepository) InsertSignals(ctx context.Context, records []domain.SignalRecord) ([]domain.SignalRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	_, span := r.tracer.Start(ctx, "signal-repo.insert-signals")
	defer span.End()

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(
			`INSERT INTO signals (
			     ticker, period, interval, generated_at, pattern, trend,
			     rsi, macd, atr, volume, gap, current_price,
			     upper_target, lower_target, probability, signals_text
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			 ON CONFLICT (ticker, period, interval, generated_at) DO UPDATE SET
			     pattern = EXCLUDED.pattern,
			     trend = EXCLUDED.trend,
			     rsi = EXCLUDED.rsi,
			     macd = EXCLUDED.macd,
			     atr = EXCLUDED.atr,
			     volume = EXCLUDED.volume,
			     gap = EXCLUDED.gap,
			     current_price = EXCLUDED.current_price,
			     upper_target = EXCLUDED.upper_target,
			     lower_target = EXCLUDED.lower_target,
			     probability = EXCLUDED.probability,
			     signals_text = EXCLUDED.signals_text
			 RETURNING id`,
			rec.Ticker,
			rec.Period,
			rec.Interval,
			rec.GeneratedAt.UTC(),
			rec.Pattern,
			string(rec.Trend),
			rec.RSI,
			rec.MACD,
			rec.ATR,
			rec.Volume,
			rec.Gap,
			rec.CurrentPrice,
			rec.UpperTarget,
			rec.LowerTarget,
			int16(rec.Probability),
			rec.Signals,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]domain.SignalRecord, len(records))
	copy(out, records)
	for i := range records {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, err
		}
		out[i].ID = id
	}

	return out, nil
}

func (r *SignalRepository) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-signals")
	defer span.End()

	args := make([]any, 0, 3)
	var sb strings.Builder
	sb.WriteString(`SELECT ` + signalColumns + `,
               COALESCE(si.id, 0), COALESCE(si.mime_type, ''), COALESCE(si.width, 0), COALESCE(si.height, 0),
               COALESCE(si.expires_at, to_timestamp(0))
		FROM signals s
		LEFT JOIN signal_images si
		  ON si.signal_id = s.id
		 AND si.render_status = 'ready'
		 AND si.expires_at > NOW()
		WHERE 1=1`)

	if filter.Ticker != "" {
		args = append(args, strings.ToUpper(filter.Ticker))
		sb.WriteString(fmt.Sprintf(" AND s.ticker = $%d", len(args)))
	}
	if filter.Trend != "" {
		args = append(args, string(filter.Trend))
		sb.WriteString(fmt.Sprintf(" AND s.trend = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY s.generated_at DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SignalRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSignalWithImage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// scanSignalRecord reads one signalColumns row.
func scanSignalRecord(row pgx.Row) (domain.SignalRecord, error) {
	var rec domain.SignalRecord
	var trend string
	var probability int16
	var generatedAt time.Time

	if err := row.Scan(
		&rec.ID, &rec.Ticker, &rec.Period, &rec.Interval, &generatedAt, &rec.Pattern, &trend,
		&rec.RSI, &rec.MACD, &rec.ATR, &rec.Volume, &rec.Gap, &rec.CurrentPrice,
		&rec.UpperTarget, &rec.LowerTarget, &probability, &rec.Signals,
	); err != nil {
		return domain.SignalRecord{}, err
	}
	rec.Trend = domain.Trend(trend)
	rec.Probability = int(probability)
	rec.GeneratedAt = generatedAt.UTC()
	return rec, nil
}

func scanSignalWithImage(rows pgx.Rows) (domain.SignalRecord, error) {
	var rec domain.SignalRecord
	var trend string
	var probability int16
	var generatedAt time.Time
	var imageID int64
	var mimeType string
	var width int
	var height int
	var expiresAt time.Time

	if err := rows.Scan(
		&rec.ID,
		&rec.Ticker,
		&rec.Period,
		&rec.Interval,
		&generatedAt,
		&rec.Pattern,
		&trend,
		&rec.RSI,
		&rec.MACD,
		&rec.ATR,
		&rec.Volume,
		&rec.Gap,
		&rec.CurrentPrice,
		&rec.UpperTarget,
		&rec.LowerTarget,
		&probability,
		&rec.Signals,
		&imageID,
		&mimeType,
		&width,
		&height,
		&expiresAt,
	); err != nil {
		return domain.SignalRecord{}, err
	}
	rec.Trend = domain.Trend(trend)
	rec.Probability = int(probability)
	rec.GeneratedAt = generatedAt.UTC()
	if imageID > 0 {
		rec.Image = &domain.SignalImageRef{
			ImageID:   imageID,
			MimeType:  mimeType,
			Width:     width,
			Height:    height,
			ExpiresAt: expiresAt.UTC(),
		}
	}
	return rec, nil
}

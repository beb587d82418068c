package repository

import (
	"context"
	"errors"
	"time"

	"swing-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// SignalImageRepository stores rendered chart PNGs one-to-one with signal
// rows, plus the retry bookkeeping for renders that failed.
type SignalImageRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalImageRepository(pool PgxPool, tracer trace.Tracer) *SignalImageRepository {
	return &SignalImageRepository{pool: pool, tracer: tracer}
}

func (r *SignalImageRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-image-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS signal_images (
    id BIGSERIAL PRIMARY KEY,
    signal_id BIGINT NOT NULL UNIQUE REFERENCES signals(id) ON DELETE CASCADE,
    mime_type TEXT NOT NULL,
    image_bytes BYTEA NOT NULL,
    width INT NOT NULL,
    height INT NOT NULL,
    render_status TEXT NOT NULL,
    error_text TEXT NOT NULL DEFAULT '',
    retry_count INT NOT NULL DEFAULT 0,
    next_retry_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
)`)
	return err
}

// GetSignalImageBySignalID returns the stored chart, or (nil, nil) when no
// usable image exists for the signal.
func (r *SignalImageRepository) GetSignalImageBySignalID(
	ctx context.Context,
	signalID int64,
) (*domain.SignalImageData, error) {
	_, span := r.tracer.Start(ctx, "signal-image-repo.get-by-signal-id")
	defer span.End()

	row := r.pool.QueryRow(ctx, `
SELECT id, mime_type, width, height, expires_at, image_bytes
  FROM signal_images
 WHERE signal_id = $1 AND render_status = 'ready' AND expires_at > NOW()`,
		signalID)

	var img domain.SignalImageData
	err := row.Scan(&img.Ref.ImageID, &img.Ref.MimeType, &img.Ref.Width,
		&img.Ref.Height, &img.Ref.ExpiresAt, &img.Bytes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	img.Ref.ExpiresAt = img.Ref.ExpiresAt.UTC()
	return &img, nil
}

// UpsertSignalImageReady stores a successful render, resetting any failure
// bookkeeping left by earlier attempts.
func (r *SignalImageRepository) UpsertSignalImageReady(
	ctx context.Context,
	signalID int64,
	imageBytes []byte,
	mimeType string,
	width, height int,
	expiresAt time.Time,
) (*domain.SignalImageRef, error) {
	_, span := r.tracer.Start(ctx, "signal-image-repo.upsert-ready")
	defer span.End()

	row := r.pool.QueryRow(ctx, `
INSERT INTO signal_images
    (signal_id, mime_type, image_bytes, width, height,
     render_status, error_text, retry_count, next_retry_at, expires_at)
VALUES ($1, $2, $3, $4, $5, 'ready', '', 0, NOW(), $6)
ON CONFLICT (signal_id) DO UPDATE SET
    mime_type = EXCLUDED.mime_type,
    image_bytes = EXCLUDED.image_bytes,
    width = EXCLUDED.width,
    height = EXCLUDED.height,
    render_status = 'ready',
    error_text = '',
    retry_count = 0,
    next_retry_at = NOW(),
    expires_at = EXCLUDED.expires_at
RETURNING id, mime_type, width, height, expires_at`,
		signalID, mimeType, imageBytes, width, height, expiresAt.UTC())

	var ref domain.SignalImageRef
	if err := row.Scan(&ref.ImageID, &ref.MimeType, &ref.Width, &ref.Height, &ref.ExpiresAt); err != nil {
		return nil, err
	}
	ref.ExpiresAt = ref.ExpiresAt.UTC()
	return &ref, nil
}

// UpsertSignalImageFailure records a failed render attempt. The retry counter
// accumulates across attempts until a successful render resets it.
func (r *SignalImageRepository) UpsertSignalImageFailure(
	ctx context.Context,
	signalID int64,
	errorText string,
	nextRetryAt time.Time,
	expiresAt time.Time,
) error {
	_, span := r.tracer.Start(ctx, "signal-image-repo.upsert-failure")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
INSERT INTO signal_images
    (signal_id, mime_type, image_bytes, width, height,
     render_status, error_text, retry_count, next_retry_at, expires_at)
VALUES ($1, 'image/png', ''::bytea, 0, 0, 'failed', $2, 1, $3, $4)
ON CONFLICT (signal_id) DO UPDATE SET
    render_status = 'failed',
    error_text = EXCLUDED.error_text,
    retry_count = signal_images.retry_count + 1,
    next_retry_at = EXCLUDED.next_retry_at,
    expires_at = EXCLUDED.expires_at`,
		signalID, errorText, nextRetryAt.UTC(), expiresAt.UTC())
	return err
}

// ListRetryCandidates returns records whose chart render failed and is due
// for another attempt.
func (r *SignalImageRepository) ListRetryCandidates(
	ctx context.Context,
	limit int,
	maxRetryCount int,
) ([]domain.SignalRecord, error) {
	_, span := r.tracer.Start(ctx, "signal-image-repo.list-retry-candidates")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	if maxRetryCount <= 0 {
		maxRetryCount = 3
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+signalColumns+`
  FROM signal_images si
  JOIN signals s ON s.id = si.signal_id
 WHERE si.render_status = 'failed'
   AND si.retry_count < $1
   AND si.next_retry_at <= NOW()
 ORDER BY si.next_retry_at ASC
 LIMIT $2`,
		maxRetryCount, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SignalRecord, 0, limit)
	for rows.Next() {
		rec, err := scanSignalRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SignalImageRepository) DeleteExpiredSignalImages(ctx context.Context) (int64, error) {
	_, span := r.tracer.Start(ctx, "signal-image-repo.delete-expired")
	defer span.End()

	tag, err := r.pool.Exec(ctx, `DELETE FROM signal_images WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

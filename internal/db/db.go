package db

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the process-wide connection pool. It stays nil when no DSN is
// configured and every store built on it degrades to provider-only mode.
var Pool *pgxpool.Pool

// Connect opens the shared pool and waits for the database to answer.
func Connect(ctx context.Context, dsn string) {
	if dsn == "" {
		log.Println("no database configured, persistence disabled")
		return
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("postgres pool: %v", err)
	}
	if err := awaitPing(ctx, pool, 3); err != nil {
		log.Fatalf("postgres ping: %v", err)
	}

	Pool = pool
	log.Println("Postgres connected")
}

// awaitPing retries the first ping with linear backoff.
func awaitPing(ctx context.Context, pool *pgxpool.Pool, attempts int) error {
	var err error
	for i := range attempts {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return err
}

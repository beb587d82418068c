package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"swing-trader/internal/domain"
	"swing-trader/internal/provider"
	"swing-trader/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel/trace"
)

const defaultPeriod = "6mo"

type barFetcher interface {
	FetchBars(ctx context.Context, ticker, period, interval string) (domain.BarSeries, error)
}

// Seams for the tests: run() with a fake provider and no database writes
// parquet files end to end.
var (
	loadDotenv     = godotenv.Load
	openPool       = pgxpool.New
	newBarProvider = func(tracer trace.Tracer) barFetcher { return provider.NewYahooProvider(tracer) }
	writeParquet   = func(path string, bars []domain.Bar) error { return parquet.WriteFile(path, bars) }
)

type options struct {
	period     string
	interval   string
	tickers    []string
	parquetDir string
}

func main() {
	loadDotenv()
	if err := run(context.Background(), os.Args[1:], os.Getenv); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string) error {
	opts, err := parseOptions(args, getenv)
	if err != nil {
		return fmt.Errorf("parse options: %w", err)
	}

	dsn := strings.TrimSpace(getenv("DATABASE_URL"))
	if dsn == "" && opts.parquetDir == "" {
		return errors.New("DATABASE_URL or -parquet-dir is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Minute)
	defer cancel()

	tracer := trace.NewNoopTracerProvider().Tracer("backfill")

	var barRepo *repository.BarRepository
	if dsn != "" {
		pool, err := openPool(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		barRepo = repository.NewBarRepository(pool, tracer)
		if err := barRepo.RunMigrations(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	if opts.parquetDir != "" {
		if err := os.MkdirAll(opts.parquetDir, 0o755); err != nil {
			return fmt.Errorf("create parquet dir: %w", err)
		}
	}

	log.Printf("starting bar backfill: period=%s interval=%s tickers=%s",
		opts.period, opts.interval, strings.Join(opts.tickers, ","))

	yahoo := newBarProvider(tracer)
	totalBars := 0
	for _, ticker := range opts.tickers {
		n, err := backfillTicker(ctx, yahoo, barRepo, opts, ticker)
		if err != nil {
			return err
		}
		totalBars += n
	}

	log.Printf("backfill complete: tickers=%d total_bars=%d period=%s interval=%s",
		len(opts.tickers), totalBars, opts.period, opts.interval)
	return nil
}

func backfillTicker(ctx context.Context, yahoo barFetcher, barRepo *repository.BarRepository, opts options, ticker string) (int, error) {
	series, err := yahoo.FetchBars(ctx, ticker, opts.period, opts.interval)
	if err != nil {
		return 0, fmt.Errorf("fetch bars for %s: %w", ticker, err)
	}
	if len(series.Bars) == 0 {
		log.Printf("no bars returned for %s", ticker)
		return 0, nil
	}

	if barRepo != nil {
		if err := barRepo.UpsertBars(ctx, ticker, opts.interval, series.Bars); err != nil {
			return 0, fmt.Errorf("upsert bars for %s: %w", ticker, err)
		}
	}
	if opts.parquetDir != "" {
		if err := writeParquet(parquetPath(opts.parquetDir, ticker, opts.interval), series.Bars); err != nil {
			return 0, fmt.Errorf("write parquet for %s: %w", ticker, err)
		}
	}

	log.Printf("backfilled %s: %d bars", ticker, len(series.Bars))
	return len(series.Bars), nil
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	period := fs.String("period",
		envDefault(getenv, domain.IsSupportedPeriod, defaultPeriod, "BACKFILL_PERIOD", "DEFAULT_PERIOD"),
		"history window to fetch (default from BACKFILL_PERIOD, then DEFAULT_PERIOD, else 6mo)")
	interval := fs.String("interval",
		envDefault(getenv, domain.IsSupportedInterval, domain.DefaultInterval, "BACKFILL_INTERVAL", "DEFAULT_INTERVAL"),
		"bar interval to fetch (default from BACKFILL_INTERVAL, then DEFAULT_INTERVAL, else 1d)")
	tickersRaw := fs.String("tickers", strings.Join(domain.DefaultTickers, ","), "comma-separated tickers to backfill")
	parquetDir := fs.String("parquet-dir", strings.TrimSpace(getenv("BACKFILL_PARQUET_DIR")), "directory for parquet archives, empty disables the export")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if !domain.IsSupportedPeriod(*period) {
		return options{}, fmt.Errorf("unsupported period: %s", *period)
	}
	if !domain.IsSupportedInterval(*interval) {
		return options{}, fmt.Errorf("unsupported interval: %s", *interval)
	}

	tickers, err := splitTickers(*tickersRaw)
	if err != nil {
		return options{}, err
	}

	return options{
		period:     *period,
		interval:   *interval,
		tickers:    tickers,
		parquetDir: strings.TrimSpace(*parquetDir),
	}, nil
}

// envDefault returns the first env value that passes valid, in key order.
func envDefault(getenv func(string) string, valid func(string) bool, fallback string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(getenv(key)); valid(v) {
			return v
		}
	}
	return fallback
}

// splitTickers uppercases, dedupes, and validates a comma-separated list.
func splitTickers(raw string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ticker := strings.ToUpper(strings.TrimSpace(part))
		if ticker == "" || seen[ticker] {
			continue
		}
		if !domain.IsSupportedTicker(ticker) {
			return nil, fmt.Errorf("unsupported ticker: %s", ticker)
		}
		seen[ticker] = true
		out = append(out, ticker)
	}
	if len(out) == 0 {
		return nil, errors.New("tickers cannot be empty")
	}
	return out, nil
}

func parquetPath(dir, ticker, interval string) string {
	name := fmt.Sprintf("%s_%s.parquet", strings.ToLower(ticker), interval)
	return filepath.Join(dir, name)
}

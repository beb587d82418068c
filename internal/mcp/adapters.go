package mcp

import (
	"context"

	"swing-trader/internal/domain"
)

// BarReader exposes read operations over stored OHLCV history.
type BarReader interface {
	RecentBars(ctx context.Context, ticker, interval string, limit int) ([]domain.Bar, error)
}

// SignalReaderWriter exposes read/generate operations for signal records.
type SignalReaderWriter interface {
	ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error)
	RunBatch(ctx context.Context, tickers []string, period, interval string) (domain.BatchRun, []domain.SignalRecord, error)
}

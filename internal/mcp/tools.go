package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolset binds the tool handlers to their backing services. Either service
// may be nil when the process runs without that dependency; the handlers
// report it per call instead of failing registration.
type toolset struct {
	bars    BarReader
	signals SignalReaderWriter
}

func registerTools(server *mcp.Server, bars BarReader, signals SignalReaderWriter) {
	ts := toolset{bars: bars, signals: signals}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "tickers_list",
		Description: "List the stock tickers covered by the signal engine",
	}, ts.listTickers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bars_list",
		Description: "Get stored OHLCV bars by ticker, interval, and limit",
	}, ts.listBars)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_list",
		Description: "Get recent swing-trade signal records with optional filters",
	}, ts.listSignals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "signals_generate",
		Description: "Run an analysis batch and persist fresh signal records",
	}, ts.generateSignals)
}

func (t toolset) listTickers(_ context.Context, _ *mcp.CallToolRequest, _ tickersListInput) (*mcp.CallToolResult, tickersListOutput, error) {
	return nil, tickersListOutput{Tickers: supportedTickers()}, nil
}

func (t toolset) listBars(ctx context.Context, _ *mcp.CallToolRequest, in barsListInput) (*mcp.CallToolResult, barsListOutput, error) {
	if t.bars == nil {
		return nil, barsListOutput{}, fmt.Errorf("bar service unavailable")
	}

	ticker, err := normalizeTicker(in.Ticker)
	if err != nil {
		return nil, barsListOutput{}, err
	}
	interval, err := normalizeInterval(in.Interval)
	if err != nil {
		return nil, barsListOutput{}, err
	}

	bars, err := t.bars.RecentBars(ctx, ticker, interval, clampLimit(in.Limit, defaultBarLimit, maxBarLimit))
	if err != nil {
		return nil, barsListOutput{}, err
	}
	return nil, barsListOutput{Ticker: ticker, Interval: interval, Bars: bars}, nil
}

func (t toolset) listSignals(ctx context.Context, _ *mcp.CallToolRequest, in signalsListInput) (*mcp.CallToolResult, signalsListOutput, error) {
	if t.signals == nil {
		return nil, signalsListOutput{}, fmt.Errorf("signal service unavailable")
	}

	filter, err := normalizeSignalFilter(in)
	if err != nil {
		return nil, signalsListOutput{}, err
	}
	records, err := t.signals.ListSignals(ctx, filter)
	if err != nil {
		return nil, signalsListOutput{}, err
	}
	return nil, signalsListOutput{Signals: records}, nil
}

func (t toolset) generateSignals(ctx context.Context, _ *mcp.CallToolRequest, in signalsGenerateInput) (*mcp.CallToolResult, signalsGenerateOutput, error) {
	if t.signals == nil {
		return nil, signalsGenerateOutput{}, fmt.Errorf("signal service unavailable")
	}

	tickers, err := normalizeGenerateTickers(in.Tickers)
	if err != nil {
		return nil, signalsGenerateOutput{}, err
	}
	period, err := normalizePeriod(in.Period)
	if err != nil {
		return nil, signalsGenerateOutput{}, err
	}
	interval, err := normalizeInterval(in.Interval)
	if err != nil {
		return nil, signalsGenerateOutput{}, err
	}

	run, generated, err := t.signals.RunBatch(ctx, tickers, period, interval)
	if err != nil {
		return nil, signalsGenerateOutput{}, err
	}
	return nil, signalsGenerateOutput{Run: run, Signals: generated}, nil
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"swing-trader/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "swing-trader"

type windowsPayload struct {
	Periods         []string `json:"periods"`
	Intervals       []string `json:"intervals"`
	DefaultPeriod   string   `json:"default_period"`
	DefaultInterval string   `json:"default_interval"`
}

// resourceset binds the resource handlers to their backing services,
// mirroring the toolset split.
type resourceset struct {
	bars    BarReader
	signals SignalReaderWriter
}

func registerResources(server *mcp.Server, bars BarReader, signals SignalReaderWriter) {
	rs := resourceset{bars: bars, signals: signals}

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "://tickers",
		Name:        "tickers",
		Description: "Stock tickers covered by the signal engine",
		MIMEType:    "application/json",
	}, rs.serveTickers)

	server.AddResource(&mcp.Resource{
		URI:         resourceScheme + "://windows",
		Name:        "windows",
		Description: "Supported lookback periods and bar intervals",
		MIMEType:    "application/json",
	}, rs.serveWindows)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: resourceScheme + "://bars/{ticker}/{interval}{?limit}",
		Name:        "bars-by-ticker-interval",
		Description: "Stored OHLCV bars for a ticker and interval; optional limit query param",
		MIMEType:    "application/json",
	}, rs.serveBars)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: resourceScheme + "://signals/latest{?ticker,trend,limit}",
		Name:        "signals-latest",
		Description: "Recent signal records with optional ticker/trend/limit query params",
		MIMEType:    "application/json",
	}, rs.serveLatestSignals)
}

func (rs resourceset) serveTickers(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, tickersListOutput{Tickers: supportedTickers()})
}

func (rs resourceset) serveWindows(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, windowsPayload{
		Periods:         domain.SupportedPeriods,
		Intervals:       domain.SupportedIntervals,
		DefaultPeriod:   domain.DefaultPeriod,
		DefaultInterval: domain.DefaultInterval,
	})
}

func (rs resourceset) serveBars(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if rs.bars == nil {
		return nil, fmt.Errorf("bar service unavailable")
	}

	ticker, interval, limit, err := parseBarsURI(req.Params.URI)
	if err != nil {
		return nil, err
	}
	result, err := rs.bars.RecentBars(ctx, ticker, interval, limit)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, barsListOutput{Ticker: ticker, Interval: interval, Bars: result})
}

// parseBarsURI dissects swing-trader://bars/{ticker}[/{interval}]?limit=N.
// A missing interval or limit falls back to the instrument defaults.
func parseBarsURI(uri string) (ticker, interval string, limit int, err error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != resourceScheme || parsed.Host != "bars" {
		return "", "", 0, mcp.ResourceNotFoundError(uri)
	}

	parts := strings.Split(strings.Trim(strings.TrimSpace(parsed.Path), "/"), "/")
	if len(parts) > 2 {
		return "", "", 0, mcp.ResourceNotFoundError(uri)
	}
	if ticker, err = normalizeTicker(parts[0]); err != nil {
		return "", "", 0, err
	}
	raw := ""
	if len(parts) == 2 {
		raw = parts[1]
	}
	if interval, err = normalizeInterval(raw); err != nil {
		return "", "", 0, err
	}
	if limit, err = queryLimit(parsed.Query(), defaultBarLimit, maxBarLimit); err != nil {
		return "", "", 0, err
	}
	return ticker, interval, limit, nil
}

func (rs resourceset) serveLatestSignals(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if rs.signals == nil {
		return nil, fmt.Errorf("signal service unavailable")
	}

	parsed, err := url.Parse(req.Params.URI)
	if err != nil || parsed.Scheme != resourceScheme || parsed.Host != "signals" ||
		strings.Trim(parsed.Path, "/") != "latest" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	q := parsed.Query()
	limit, err := queryLimit(q, defaultSignalLimit, maxSignalLimit)
	if err != nil {
		return nil, err
	}
	filter, err := normalizeSignalFilter(signalsListInput{
		Ticker: q.Get("ticker"),
		Trend:  q.Get("trend"),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	list, err := rs.signals.ListSignals(ctx, filter)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, signalsListOutput{Signals: list})
}

func queryLimit(q url.Values, fallback, ceiling int) (int, error) {
	raw := strings.TrimSpace(q.Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit: %s", raw)
	}
	return clampLimit(n, fallback, ceiling), nil
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(body),
		}},
	}, nil
}

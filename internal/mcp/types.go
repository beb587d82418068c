package mcp

import (
	"fmt"
	"strings"

	"swing-trader/internal/domain"
)

const (
	defaultBarLimit    = 120
	maxBarLimit        = 500
	defaultSignalLimit = 50
	maxSignalLimit     = 200
)

type tickersListInput struct{}

type tickerInfo struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

type tickersListOutput struct {
	Tickers []tickerInfo `json:"tickers"`
}

type barsListInput struct {
	Ticker   string `json:"ticker" jsonschema:"stock ticker (e.g. AAPL, MSFT)"`
	Interval string `json:"interval,omitempty" jsonschema:"bar interval: 1d, 1h, 1wk (default 1d)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of bars to return, max 500"`
}

type barsListOutput struct {
	Ticker   string       `json:"ticker"`
	Interval string       `json:"interval"`
	Bars     []domain.Bar `json:"bars"`
}

type signalsListInput struct {
	Ticker string `json:"ticker,omitempty" jsonschema:"optional stock ticker (e.g. AAPL)"`
	Trend  string `json:"trend,omitempty" jsonschema:"optional trend filter: Bullish, Bearish, Neutral"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of records to return, max 200"`
}

type signalsListOutput struct {
	Signals []domain.SignalRecord `json:"signals"`
}

type signalsGenerateInput struct {
	Tickers  []string `json:"tickers,omitempty" jsonschema:"optional ticker list, defaults to the full universe"`
	Period   string   `json:"period,omitempty" jsonschema:"lookback period: 1mo, 3mo, 6mo, 1y (default 6mo)"`
	Interval string   `json:"interval,omitempty" jsonschema:"bar interval: 1d, 1h, 1wk (default 1d)"`
}

type signalsGenerateOutput struct {
	Run     domain.BatchRun       `json:"run"`
	Signals []domain.SignalRecord `json:"signals"`
}

func supportedTickers() []tickerInfo {
	out := make([]tickerInfo, 0, len(domain.DefaultTickers))
	for _, ticker := range domain.DefaultTickers {
		out = append(out, tickerInfo{Ticker: ticker, Name: domain.TickerName[ticker]})
	}
	return out
}

func normalizeTicker(ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case ticker == "":
		return "", fmt.Errorf("ticker is required")
	case !domain.IsSupportedTicker(ticker):
		return "", fmt.Errorf("unsupported ticker: %s", ticker)
	}
	return ticker, nil
}

func normalizeInterval(interval string) (string, error) {
	return pickSupported("interval", interval, domain.DefaultInterval, domain.SupportedIntervals)
}

func normalizePeriod(period string) (string, error) {
	return pickSupported("period", period, domain.DefaultPeriod, domain.SupportedPeriods)
}

// pickSupported maps an empty value to the fallback and anything else to
// itself, provided it appears in the supported list.
func pickSupported(kind, value, fallback string, supported []string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	for _, s := range supported {
		if value == s {
			return value, nil
		}
	}
	return "", fmt.Errorf("unsupported %s: %s", kind, value)
}

func normalizeTrend(trend string) (domain.Trend, error) {
	switch strings.ToLower(strings.TrimSpace(trend)) {
	case "":
		return "", nil
	case "bullish":
		return domain.TrendBullish, nil
	case "bearish":
		return domain.TrendBearish, nil
	case "neutral":
		return domain.TrendNeutral, nil
	}
	return "", fmt.Errorf("unsupported trend: %s", trend)
}

func clampLimit(limit, fallback, ceiling int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > ceiling:
		return ceiling
	}
	return limit
}

func normalizeSignalFilter(in signalsListInput) (domain.SignalFilter, error) {
	trend, err := normalizeTrend(in.Trend)
	if err != nil {
		return domain.SignalFilter{}, err
	}

	filter := domain.SignalFilter{
		Trend: trend,
		Limit: clampLimit(in.Limit, defaultSignalLimit, maxSignalLimit),
	}
	if strings.TrimSpace(in.Ticker) != "" {
		if filter.Ticker, err = normalizeTicker(in.Ticker); err != nil {
			return domain.SignalFilter{}, err
		}
	}
	return filter, nil
}

func normalizeGenerateTickers(tickers []string) ([]string, error) {
	if len(tickers) == 0 {
		return append([]string(nil), domain.DefaultTickers...), nil
	}

	seen := make(map[string]struct{}, len(tickers))
	result := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		ticker, err := normalizeTicker(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		result = append(result, ticker)
	}
	return result, nil
}

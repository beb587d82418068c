package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"swing-trader/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	defaultTimeout = 10 * time.Second

	// Yahoo rejects requests without a browser-looking agent.
	userAgent = "Mozilla/5.0 (compatible; swing-trader/1.0)"
)

// YahooProvider fetches OHLCV history from the Yahoo Finance chart API.
type YahooProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
}

func NewYahooProvider(tracer trace.Tracer) *YahooProvider {
	return NewYahooProviderWithBaseURL(tracer, defaultBaseURL, defaultTimeout)
}

func NewYahooProviderWithBaseURL(tracer trace.Tracer, baseURL string, timeout time.Duration) *YahooProvider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &YahooProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		tracer:  tracer,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchBars returns the bar history for one ticker. An instrument with no
// history comes back as an empty series, not an error; the caller decides
// what no data means.
func (p *YahooProvider) FetchBars(ctx context.Context, ticker, period, interval string) (domain.BarSeries, error) {
	_, span := p.tracer.Start(ctx, "yahoo-provider.fetch-bars")
	defer span.End()

	series := domain.BarSeries{Ticker: ticker}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", p.baseURL, url.PathEscape(ticker))
	u, err := url.Parse(endpoint)
	if err != nil {
		return series, fmt.Errorf("parse provider url: %w", err)
	}
	q := u.Query()
	q.Set("range", period)
	q.Set("interval", interval)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return series, fmt.Errorf("create provider request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return series, fmt.Errorf("fetch bars for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return series, fmt.Errorf("read provider response for %s: %w", ticker, err)
	}

	var decoded chartResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return series, fmt.Errorf("parse provider response for %s (status %d): %w", ticker, resp.StatusCode, err)
	}

	if decoded.Chart.Error != nil {
		return series, fmt.Errorf("provider error for %s: %s: %s",
			ticker, decoded.Chart.Error.Code, decoded.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return series, fmt.Errorf("provider status %d for %s", resp.StatusCode, ticker)
	}
	if len(decoded.Chart.Result) == 0 {
		return series, nil
	}

	result := decoded.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return series, nil
	}

	quote := result.Indicators.Quote[0]
	series.Bars = make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Halted or padded slots come back null; skip the whole bar.
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) ||
			i >= len(quote.Close) || i >= len(quote.Volume) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil ||
			quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		series.Bars = append(series.Bars, domain.Bar{
			Ts:     time.Unix(ts, 0).UTC(),
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: *quote.Volume[i],
		})
	}

	return series, nil
}

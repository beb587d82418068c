package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"swing-trader/internal/domain"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// fakeBars serves canned bars keyed by "TICKER:interval" and records the
// arguments of the last call.
type fakeBars struct {
	series map[string][]domain.Bar

	gotTicker   string
	gotInterval string
	gotLimit    int
}

func (f *fakeBars) RecentBars(_ context.Context, ticker, interval string, limit int) ([]domain.Bar, error) {
	f.gotTicker, f.gotInterval, f.gotLimit = ticker, interval, limit

	bars := f.series[ticker+":"+interval]
	if len(bars) > limit {
		bars = bars[:limit]
	}
	return append([]domain.Bar(nil), bars...), nil
}

type fakeSignals struct {
	stored    []domain.SignalRecord
	generated []domain.SignalRecord

	gotFilter  domain.SignalFilter
	gotTickers []string
	gotPeriod  string
	gotIval    string
}

func (f *fakeSignals) ListSignals(_ context.Context, filter domain.SignalFilter) ([]domain.SignalRecord, error) {
	f.gotFilter = filter
	return append([]domain.SignalRecord(nil), f.stored...), nil
}

func (f *fakeSignals) RunBatch(_ context.Context, tickers []string, period, interval string) (domain.BatchRun, []domain.SignalRecord, error) {
	f.gotTickers = append([]string(nil), tickers...)
	f.gotPeriod, f.gotIval = period, interval

	run := domain.BatchRun{
		ID:        "batch-0001",
		Period:    period,
		Interval:  interval,
		Requested: len(tickers),
		Succeeded: len(f.generated),
	}
	return run, append([]domain.SignalRecord(nil), f.generated...), nil
}

func testServer() (*sdkmcp.Server, *fakeBars, *fakeSignals) {
	day := 24 * time.Hour
	bars := &fakeBars{
		series: map[string][]domain.Bar{
			"AAPL:1d": {
				{Ts: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), Open: 187.1, High: 189.5, Low: 186.2, Close: 188.9, Volume: 51_000_000},
				{Ts: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC).Add(day), Open: 188.9, High: 191.0, Low: 188.0, Close: 190.4, Volume: 48_500_000},
			},
		},
	}
	signals := &fakeSignals{
		stored: []domain.SignalRecord{{
			ID: 1, Ticker: "AAPL", Period: domain.DefaultPeriod, Interval: domain.DefaultInterval,
			Trend: domain.TrendBullish, Probability: domain.ProbabilityAligned,
			GeneratedAt: time.Date(2026, 2, 3, 21, 0, 0, 0, time.UTC),
		}},
		generated: []domain.SignalRecord{{
			ID: 2, Ticker: "MSFT", Period: domain.DefaultPeriod, Interval: domain.DefaultInterval,
			Trend: domain.TrendNeutral, Probability: domain.ProbabilityBase,
			GeneratedAt: time.Date(2026, 2, 3, 21, 5, 0, 0, time.UTC),
		}},
	}

	srv := NewServer(nil, bars, signals, ServerConfig{RequestTimeout: time.Second})
	return srv, bars, signals
}

func connectInMemory(ctx context.Context, srv *sdkmcp.Server) (*sdkmcp.ClientSession, context.CancelFunc, error) {
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	runCtx, cancel := context.WithCancel(ctx)
	go func() { _ = srv.Run(runCtx, serverTransport) }()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "mcp-test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return session, cancel, nil
}

type authRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.token != "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

func decodeResourceJSON(result *sdkmcp.ReadResourceResult, out any) error {
	if len(result.Contents) == 0 {
		return nil
	}
	return json.Unmarshal([]byte(result.Contents[0].Text), out)
}

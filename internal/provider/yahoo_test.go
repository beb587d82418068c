package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const chartPayload = `{
  "chart": {
    "result": [
      {
        "timestamp": [1700000000, 1700086400, 1700172800],
        "indicators": {
          "quote": [
            {
              "open":   [100.0, 101.5, null],
              "high":   [102.0, 103.0, 104.0],
              "low":    [99.0, 100.5, 101.0],
              "close":  [101.0, 102.5, 103.0],
              "volume": [1000000.0, 1200000.0, 900000.0]
            }
          ]
        }
      }
    ],
    "error": null
  }
}`

const chartErrorPayload = `{
  "chart": {
    "result": null,
    "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}
  }
}`

const chartEmptyPayload = `{
  "chart": {
    "result": [],
    "error": null
  }
}`

func newTestProvider(handler http.HandlerFunc) (*YahooProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := NewYahooProviderWithBaseURL(trace.NewNoopTracerProvider().Tracer("test"), srv.URL, time.Second)
	return p, srv
}

func TestFetchBarsParsesChart(t *testing.T) {
	var gotPath, gotRange, gotInterval, gotAgent string
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(chartPayload))
	})
	defer srv.Close()

	series, err := p.FetchBars(context.Background(), "AAPL", "1mo", "1d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v8/finance/chart/AAPL" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotRange != "1mo" || gotInterval != "1d" {
		t.Fatalf("unexpected query: range=%s interval=%s", gotRange, gotInterval)
	}
	if gotAgent == "" {
		t.Fatal("expected User-Agent header to be set")
	}
	if series.Ticker != "AAPL" {
		t.Fatalf("unexpected ticker: %s", series.Ticker)
	}
	// Third slot has a null open and must be dropped.
	if len(series.Bars) != 2 {
		t.Fatalf("expected 2 bars after null filtering, got %d", len(series.Bars))
	}
	first := series.Bars[0]
	if first.Open != 100.0 || first.Close != 101.0 || first.Volume != 1000000.0 {
		t.Fatalf("unexpected first bar: %+v", first)
	}
	if !first.Ts.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unexpected first timestamp: %v", first.Ts)
	}
	if !series.Bars[0].Ts.Before(series.Bars[1].Ts) {
		t.Fatal("expected chronological bars")
	}
}

func TestFetchBarsProviderErrorPayload(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(chartErrorPayload))
	})
	defer srv.Close()

	_, err := p.FetchBars(context.Background(), "NOPE", "1mo", "1d")
	if err == nil {
		t.Fatal("expected error for provider error payload")
	}
	if !strings.Contains(err.Error(), "delisted") {
		t.Fatalf("expected provider description in error, got: %v", err)
	}
}

func TestFetchBarsEmptyResult(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartEmptyPayload))
	})
	defer srv.Close()

	series, err := p.FetchBars(context.Background(), "AAPL", "1mo", "1d")
	if err != nil {
		t.Fatalf("empty result should not be an error: %v", err)
	}
	if !series.IsEmpty() {
		t.Fatalf("expected empty series, got %d bars", series.Len())
	}
}

func TestFetchBarsBadStatusWithoutPayload(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"chart":{"result":null,"error":null}}`))
	})
	defer srv.Close()

	_, err := p.FetchBars(context.Background(), "AAPL", "1mo", "1d")
	if err == nil {
		t.Fatal("expected error for 500 status")
	}
}

func TestFetchBarsMalformedJSON(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway timeout</html>"))
	})
	defer srv.Close()

	_, err := p.FetchBars(context.Background(), "AAPL", "1mo", "1d")
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestFetchBarsContextCancelled(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(chartPayload))
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.FetchBars(ctx, "AAPL", "1mo", "1d")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

package chart

import (
	"math"
	"testing"
	"time"

	"swing-trader/internal/domain"
)

func TestRenderSignalChartBySignal(t *testing.T) {
	renderer := NewRenderer()
	bars := buildTestBars(160)

	cases := []struct {
		name    string
		signals string
	}{
		{"ema crossover", domain.SignalBullishCrossover},
		{"rsi macd combo", domain.SignalRSIMACDCombo},
		{"volume spike", domain.SignalVolumeSpike},
		{"no heuristics", domain.NoneLabel},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := renderer.RenderSignalChart(bars, domain.SignalRecord{
				Ticker:       "AAPL",
				Interval:     domain.DefaultInterval,
				Trend:        domain.TrendBullish,
				Signals:      tc.signals,
				CurrentPrice: bars[len(bars)-1].Close,
				UpperTarget:  bars[len(bars)-1].Close + 8,
				LowerTarget:  bars[len(bars)-1].Close - 8,
				GeneratedAt:  time.Now().UTC(),
			})
			if err != nil {
				t.Fatalf("render failed: %v", err)
			}
			if img == nil || len(img.Bytes) == 0 {
				t.Fatal("expected non-empty image bytes")
			}
			if img.Ref.MimeType != "image/png" {
				t.Fatalf("expected image/png mime type, got %s", img.Ref.MimeType)
			}
			if img.Ref.Width != canvasWidth || img.Ref.Height != canvasHeight {
				t.Fatalf("unexpected dimensions %dx%d", img.Ref.Width, img.Ref.Height)
			}
		})
	}
}

func TestRenderSignalChartNeedsTwoBars(t *testing.T) {
	renderer := NewRenderer()
	_, err := renderer.RenderSignalChart(buildTestBars(1), domain.SignalRecord{Ticker: "AAPL"})
	if err == nil {
		t.Fatal("expected error for a single bar")
	}
}

func TestRenderSignalChartTrimsHistory(t *testing.T) {
	renderer := NewRenderer()
	bars := buildTestBars(400)

	img, err := renderer.RenderSignalChart(bars, domain.SignalRecord{
		Ticker:  "MSFT",
		Signals: domain.NoneLabel,
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(img.Bytes) == 0 {
		t.Fatal("expected non-empty image bytes")
	}
}

func TestTrailingMeanWarmup(t *testing.T) {
	out := trailingMean([]float64{2, 4, 6, 8}, 2)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("warmup entries must be NaN, got %v", out[:2])
	}
	if out[2] != 3 || out[3] != 5 {
		t.Fatalf("want means [3 5], got %v", out[2:])
	}
}

func buildTestBars(count int) []domain.Bar {
	base := time.Now().UTC().Add(-time.Duration(count) * 24 * time.Hour)
	out := make([]domain.Bar, 0, count)
	price := 180.0
	for i := 0; i < count; i++ {
		step := float64((i%9)-4) * 1.2
		open := price
		close := price + step
		high := max(open, close) + 1.4
		low := min(open, close) - 1.3
		volume := 40e6 + float64((i%17))*2e6
		if i%25 == 0 {
			volume *= 2.4
		}
		out = append(out, domain.Bar{
			Ts:     base.Add(time.Duration(i) * 24 * time.Hour),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		})
		price = close
	}
	return out
}


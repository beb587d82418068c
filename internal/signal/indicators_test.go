package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"swing-trader/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMASeriesSeedAndRecurrence(t *testing.T) {
	out := EMASeries([]float64{10, 11, 12}, 9)
	if len(out) != 3 {
		t.Fatalf("expected 3 values, got %d", len(out))
	}
	if !almostEqual(out[0], 10) {
		t.Fatalf("expected seed 10, got %f", out[0])
	}
	// alpha = 0.2 for span 9
	if !almostEqual(out[1], 10.2) {
		t.Fatalf("expected 10.2, got %f", out[1])
	}
	if !almostEqual(out[2], 10.56) {
		t.Fatalf("expected 10.56, got %f", out[2])
	}
	if EMASeries(nil, 9) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestLatestRSIInsufficientHistory(t *testing.T) {
	closes := make([]float64, 14)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if _, err := latestRSI(closes, RSIPeriod); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestLatestRSIMonotonicUptrend(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, err := latestRSI(closes, RSIPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rsi != 100 {
		t.Fatalf("expected RSI 100 with no losses, got %f", rsi)
	}
}

func TestLatestRSIBalancedAlternation(t *testing.T) {
	// +1/-1 alternating deltas give equal average gain and loss.
	closes := make([]float64, 15)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 10
		} else {
			closes[i] = 11
		}
	}
	rsi, err := latestRSI(closes, RSIPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(rsi, 50) {
		t.Fatalf("expected RSI 50, got %f", rsi)
	}
}

func TestLatestMACDDiffMinimumHistory(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if _, err := latestMACDDiff(closes); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for 25 closes, got %v", err)
	}

	closes = append(closes, 125)
	diff, err := latestMACDDiff(closes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff <= 0 {
		t.Fatalf("expected positive MACD diff in an uptrend, got %f", diff)
	}
}

func TestLatestATRConstantRange(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	bars := make([]domain.Bar, 0, 16)
	for i := 0; i < 16; i++ {
		bars = append(bars, domain.Bar{
			Ts:     base.Add(time.Duration(i) * time.Hour),
			Open:   10,
			High:   11,
			Low:    9,
			Close:  10,
			Volume: 100,
		})
	}
	atr, err := latestATR(bars, atrPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(atr, 2) {
		t.Fatalf("expected ATR 2 for constant 2-point ranges, got %f", atr)
	}

	if _, err := latestATR(bars[:14], atrPeriod); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory for 14 bars, got %v", err)
	}
}

func TestTrueRangeUsesPrevClose(t *testing.T) {
	// Gap up: the high/prev-close leg dominates the bar's own range.
	b := domain.Bar{Open: 20, High: 21, Low: 19.5, Close: 20.5}
	if tr := trueRange(b, 15); !almostEqual(tr, 6) {
		t.Fatalf("expected true range 6, got %f", tr)
	}
	// Gap down.
	if tr := trueRange(b, 25); !almostEqual(tr, 5.5) {
		t.Fatalf("expected true range 5.5, got %f", tr)
	}
}

func TestPrecedingVolumeAverage(t *testing.T) {
	volumes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 100}
	avg, err := precedingVolumeAverage(volumes, VolumeWindow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(avg, 10) {
		t.Fatalf("expected average 10 over the preceding window, got %f", avg)
	}

	if _, err := precedingVolumeAverage(volumes[:10], VolumeWindow); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestVolumeSpikeBoundary(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	series := domain.BarSeries{Ticker: "AAPL"}
	for i := 0; i < 30; i++ {
		vol := 100.0
		if i == 29 {
			vol = 150 // exactly 1.5x the preceding average
		}
		series.Bars = append(series.Bars, domain.Bar{
			Ts:     base.Add(time.Duration(i) * time.Hour),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: vol,
		})
	}

	snap, err := computeIndicators(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.VolumeSpike {
		t.Fatal("expected no spike at exactly 1.5x the preceding average")
	}

	series.Bars[29].Volume = 151
	snap, err = computeIndicators(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.VolumeSpike {
		t.Fatal("expected spike above 1.5x the preceding average")
	}
}

func TestComputeIndicatorsIdempotent(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	series := domain.BarSeries{Ticker: "MSFT"}
	for i := 0; i < 40; i++ {
		c := 100 + math.Sin(float64(i))*5
		series.Bars = append(series.Bars, domain.Bar{
			Ts:     base.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000 + float64(i%7)*10,
		})
	}

	first, err := computeIndicators(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := computeIndicators(series)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical snapshots, got %+v vs %+v", first, second)
	}
}

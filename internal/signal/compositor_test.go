package signal

import (
	"testing"

	"swing-trader/internal/domain"
)

func TestCrossoverLabel(t *testing.T) {
	cases := []struct {
		name                               string
		prevFast, prevSlow, currFast, currSlow float64
		want                               string
	}{
		{"bullish cross", 1, 2, 3, 2, domain.SignalBullishCrossover},
		{"bearish cross", 2, 1, 1, 2, domain.SignalBearishCrossover},
		{"already above", 3, 2, 4, 2, domain.NoneLabel},
		{"already below", 1, 2, 1.5, 2, domain.NoneLabel},
		{"touch then rise", 2, 2, 3, 2, domain.SignalBullishCrossover},
		{"touch then fall", 2, 2, 1, 2, domain.SignalBearishCrossover},
		{"flat", 2, 2, 2, 2, domain.NoneLabel},
	}
	for _, tc := range cases {
		if got := crossoverLabel(tc.prevFast, tc.prevSlow, tc.currFast, tc.currSlow); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestComboTriggered(t *testing.T) {
	cases := []struct {
		rsi, macd float64
		want      bool
	}{
		{50, 0.5, true},
		{40, 0.5, false},  // lower bound is exclusive
		{60, 0.5, false},  // upper bound is exclusive
		{50, 0, false},    // diff must be strictly positive
		{50, -0.1, false},
		{41, 0.01, true},
		{59, 0.01, true},
	}
	for _, tc := range cases {
		if got := comboTriggered(tc.rsi, tc.macd); got != tc.want {
			t.Errorf("rsi=%f macd=%f: expected %v, got %v", tc.rsi, tc.macd, got, tc.want)
		}
	}
}

func TestSignificantGap(t *testing.T) {
	if gap := significantGap(105, 100, 4); gap != 5 {
		t.Fatalf("expected gap 5, got %f", gap)
	}
	if gap := significantGap(95, 100, 4); gap != -5 {
		t.Fatalf("expected gap -5, got %f", gap)
	}
	// Magnitude equal to the ATR filter is not significant.
	if gap := significantGap(105, 100, 5); gap != 0 {
		t.Fatalf("expected gap 0 at the boundary, got %f", gap)
	}
	if gap := significantGap(103, 100, 4); gap != 0 {
		t.Fatalf("expected gap 0 below the filter, got %f", gap)
	}
}

func TestComposeProbabilityTiers(t *testing.T) {
	comboSnap := domain.IndicatorSnapshot{RSI: 50, MACDDiff: 1, ATR: 2}
	noComboSnap := domain.IndicatorSnapshot{RSI: 75, MACDDiff: 1, ATR: 2}

	cases := []struct {
		name  string
		snap  domain.IndicatorSnapshot
		trend domain.Trend
		want  int
	}{
		{"bullish with combo", comboSnap, domain.TrendBullish, domain.ProbabilityAligned},
		{"bullish without combo", noComboSnap, domain.TrendBullish, domain.ProbabilityBase},
		{"neutral with combo", comboSnap, domain.TrendNeutral, domain.ProbabilityBase},
		{"bearish with combo", comboSnap, domain.TrendBearish, domain.ProbabilityBase},
	}
	for _, tc := range cases {
		comp := compose(tc.snap, tc.trend, 100, 99)
		if comp.probability != tc.want {
			t.Errorf("%s: expected probability %d, got %d", tc.name, tc.want, comp.probability)
		}
	}
}

func TestComposeSignalListOrderAndDisplay(t *testing.T) {
	snap := domain.IndicatorSnapshot{
		RSI:         50,
		MACDDiff:    1,
		ATR:         2,
		EMAFast:     3,
		EMAFastPrev: 1,
		EMASlow:     2,
		EMASlowPrev: 2,
		VolumeSpike: true,
	}
	comp := compose(snap, domain.TrendBullish, 100, 99)
	want := domain.SignalBullishCrossover + ", " + domain.SignalRSIMACDCombo + ", " + domain.SignalVolumeSpike
	if comp.display != want {
		t.Fatalf("expected %q, got %q", want, comp.display)
	}
	if len(comp.signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(comp.signals))
	}
}

func TestComposeEmptySignalListSentinel(t *testing.T) {
	snap := domain.IndicatorSnapshot{
		RSI:         75,
		MACDDiff:    -1,
		ATR:         2,
		EMAFast:     3,
		EMAFastPrev: 3,
		EMASlow:     2,
		EMASlowPrev: 2,
	}
	comp := compose(snap, domain.TrendNeutral, 100, 99)
	if comp.display != domain.NoneLabel {
		t.Fatalf("expected sentinel %q, got %q", domain.NoneLabel, comp.display)
	}
	if len(comp.signals) != 0 {
		t.Fatalf("expected no signals, got %v", comp.signals)
	}
}

func TestComposePriceTargets(t *testing.T) {
	snap := domain.IndicatorSnapshot{RSI: 75, ATR: 3}
	comp := compose(snap, domain.TrendNeutral, 100, 99)
	if comp.upperTarget != 106 {
		t.Fatalf("expected upper target 106, got %f", comp.upperTarget)
	}
	if comp.lowerTarget != 94 {
		t.Fatalf("expected lower target 94, got %f", comp.lowerTarget)
	}
}

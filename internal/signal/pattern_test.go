package signal

import (
	"testing"

	"swing-trader/internal/domain"
)

func TestClassifyPatternShortInput(t *testing.T) {
	for _, closes := range [][]float64{nil, {1}, {1, 2}, {1, 2, 3, 4}} {
		pattern, trend := classifyPattern(closes)
		if pattern != domain.NoneLabel || trend != domain.TrendNeutral {
			t.Fatalf("expected None/Neutral for %d closes, got %s/%s", len(closes), pattern, trend)
		}
	}
}

func TestClassifyPatternRules(t *testing.T) {
	cases := []struct {
		name    string
		closes  []float64
		pattern string
		trend   domain.Trend
	}{
		{
			name:    "double bottom",
			closes:  []float64{10, 9, 7, 8, 9.5},
			pattern: domain.PatternDoubleBottom,
			trend:   domain.TrendBullish,
		},
		{
			name:    "rising wedge",
			closes:  []float64{8, 9, 10, 9.5, 9},
			pattern: domain.PatternRisingWedge,
			trend:   domain.TrendBearish,
		},
		{
			name:    "head and shoulders",
			closes:  []float64{10, 9, 11, 10, 9.5},
			pattern: domain.PatternHeadAndShoulders,
			trend:   domain.TrendBearish,
		},
		{
			name:    "monotonic uptrend matches nothing",
			closes:  []float64{1, 2, 3, 4, 5},
			pattern: domain.NoneLabel,
			trend:   domain.TrendNeutral,
		},
		{
			name:    "monotonic downtrend matches nothing",
			closes:  []float64{5, 4, 3, 2, 1.5},
			pattern: domain.NoneLabel,
			trend:   domain.TrendNeutral,
		},
	}

	for _, tc := range cases {
		pattern, trend := classifyPattern(tc.closes)
		if pattern != tc.pattern || trend != tc.trend {
			t.Errorf("%s: expected %s/%s, got %s/%s", tc.name, tc.pattern, tc.trend, pattern, trend)
		}
	}
}

func TestClassifyPatternFirstMatchWins(t *testing.T) {
	// Satisfies both the double-bottom and inverse-head-and-shoulders raw
	// conditions; precedence must yield the first rule's label.
	closes := []float64{10, 9, 7, 8, 9.5}
	pattern, trend := classifyPattern(closes)
	if pattern != domain.PatternDoubleBottom {
		t.Fatalf("expected first-match double bottom, got %s", pattern)
	}
	if trend != domain.TrendBullish {
		t.Fatalf("expected bullish trend, got %s", trend)
	}

	// A falling-wedge-shaped window also satisfies the double-bottom
	// conditions under the exact operators, so rule order decides.
	closes = []float64{10, 9, 8, 8.5, 9}
	pattern, _ = classifyPattern(closes)
	if pattern != domain.PatternDoubleBottom {
		t.Fatalf("expected rule order to pick double bottom, got %s", pattern)
	}
}

func TestClassifyPatternUsesTrailingWindow(t *testing.T) {
	// Only the last five closes matter.
	closes := []float64{100, 100, 100, 100, 100, 8, 9, 10, 9.5, 9}
	pattern, trend := classifyPattern(closes)
	if pattern != domain.PatternRisingWedge || trend != domain.TrendBearish {
		t.Fatalf("expected rising wedge from trailing window, got %s/%s", pattern, trend)
	}
}

package signal

import (
	"math"

	"swing-trader/internal/domain"
)

const patternWindow = 5

type patternRule struct {
	name  string
	trend domain.Trend
	match func(c []float64) bool
}

// patternRules are evaluated in order and the first match wins, so no two
// patterns can fire on the same window. c holds the last five closes in
// chronological order: c[0] is the oldest, c[4] the latest. The comparison
// order and operators are load-bearing; reordering changes classifications.
var patternRules = []patternRule{
	{
		name:  domain.PatternDoubleBottom,
		trend: domain.TrendBullish,
		match: func(c []float64) bool {
			neckline := c[3]
			return c[2] < c[1] && c[4] > c[2] && c[4] > neckline
		},
	},
	{
		name:  domain.PatternInverseHS,
		trend: domain.TrendBullish,
		match: func(c []float64) bool {
			neckline := math.Max(c[1], c[3])
			return c[1] > c[2] && c[2] < c[3] && c[4] > c[3] && c[4] > neckline
		},
	},
	{
		name:  domain.PatternFallingWedge,
		trend: domain.TrendBullish,
		match: func(c []float64) bool {
			return c[0] > c[1] && c[1] > c[2] && c[2] < c[3] && c[3] < c[4]
		},
	},
	{
		name:  domain.PatternRisingWedge,
		trend: domain.TrendBearish,
		match: func(c []float64) bool {
			return c[0] < c[1] && c[1] < c[2] && c[2] > c[3] && c[3] > c[4]
		},
	},
	{
		name:  domain.PatternHeadAndShoulders,
		trend: domain.TrendBearish,
		match: func(c []float64) bool {
			return c[1] < c[2] && c[2] > c[3] && c[4] < c[3]
		},
	},
}

// classifyPattern labels the shape of the last five closes. Shorter input
// degrades to ("None", Neutral) without error; short history is not fatal
// for classification.
func classifyPattern(closes []float64) (string, domain.Trend) {
	if len(closes) < patternWindow {
		return domain.NoneLabel, domain.TrendNeutral
	}
	window := closes[len(closes)-patternWindow:]
	for _, rule := range patternRules {
		if rule.match(window) {
			return rule.name, rule.trend
		}
	}
	return domain.NoneLabel, domain.TrendNeutral
}

package signal

import (
	"fmt"
	"math"
	"time"

	"swing-trader/internal/domain"
)

// Engine turns one validated bar series into a fully populated signal record.
// It holds no state across calls and never mutates its input.
type Engine struct {
	now func() time.Time
}

// NewEngine builds an engine. now stamps generated records and is injectable
// so tests pin timestamps; nil defaults to time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Analyze computes the indicator snapshot, classifies the recent close shape,
// and composites the heuristics into a SignalRecord. Numeric outputs carry
// two-decimal display precision; volume is the last bar's, as an integer.
// A series too short for any indicator fails with ErrInsufficientHistory.
func (e *Engine) Analyze(series domain.BarSeries) (*domain.SignalRecord, error) {
	if series.IsEmpty() {
		return nil, fmt.Errorf("empty series for %s", series.Ticker)
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("series %s: %w", series.Ticker, err)
	}

	snap, err := computeIndicators(series)
	if err != nil {
		return nil, fmt.Errorf("indicators %s: %w", series.Ticker, err)
	}

	closes := series.Closes()
	pattern, trend := classifyPattern(closes)

	currClose := closes[len(closes)-1]
	prevClose := closes[len(closes)-2]
	comp := compose(snap, trend, currClose, prevClose)

	return &domain.SignalRecord{
		Ticker:       series.Ticker,
		GeneratedAt:  e.now().UTC(),
		Pattern:      pattern,
		Trend:        trend,
		RSI:          round2(snap.RSI),
		MACD:         round2(snap.MACDDiff),
		ATR:          round2(snap.ATR),
		Volume:       int64(series.Last().Volume),
		Gap:          round2(comp.gap),
		CurrentPrice: round2(currClose),
		UpperTarget:  round2(comp.upperTarget),
		LowerTarget:  round2(comp.lowerTarget),
		Probability:  comp.probability,
		Signals:      comp.display,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package signal

import (
	"errors"
	"fmt"
	"math"

	"swing-trader/internal/domain"
)

// Indicator windows. Exported so the chart renderer overlays the same series
// the engine scored.
const (
	RSIPeriod        = 14
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	EMAFastSpan      = 9
	EMASlowSpan      = 21
	VolumeWindow     = 10

	atrPeriod        = 14
	volumeSpikeRatio = 1.5
)

// ErrInsufficientHistory marks a series too short for an indicator's minimum
// window. The orchestrator logs these as warnings, not errors.
var ErrInsufficientHistory = errors.New("insufficient history")

// computeIndicators derives the last-bar snapshot from the full series. Any
// indicator that cannot be computed fails the whole series; records are never
// partially populated.
func computeIndicators(series domain.BarSeries) (domain.IndicatorSnapshot, error) {
	closes := series.Closes()

	rsi, err := latestRSI(closes, RSIPeriod)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	macdDiff, err := latestMACDDiff(closes)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	atr, err := latestATR(series.Bars, atrPeriod)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}
	avgVolume, err := precedingVolumeAverage(series.Volumes(), VolumeWindow)
	if err != nil {
		return domain.IndicatorSnapshot{}, err
	}

	fastEMA := EMASeries(closes, EMAFastSpan)
	slowEMA := EMASeries(closes, EMASlowSpan)

	return domain.IndicatorSnapshot{
		RSI:         rsi,
		MACDDiff:    macdDiff,
		ATR:         atr,
		EMAFast:     fastEMA[len(fastEMA)-1],
		EMAFastPrev: fastEMA[len(fastEMA)-2],
		EMASlow:     slowEMA[len(slowEMA)-1],
		EMASlowPrev: slowEMA[len(slowEMA)-2],
		AvgVolume:   avgVolume,
		VolumeSpike: series.Last().Volume > volumeSpikeRatio*avgVolume,
	}, nil
}

// latestRSI is the Wilder 14-period RSI at the last close.
func latestRSI(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, fmt.Errorf("%w: rsi needs %d closes, have %d", ErrInsufficientHistory, period+1, len(closes))
	}
	series := RSISeries(closes, period)
	return series[len(series)-1], nil
}

// latestMACDDiff is MACD line minus signal line at the last close.
func latestMACDDiff(closes []float64) (float64, error) {
	if len(closes) < MACDSlowPeriod {
		return 0, fmt.Errorf("%w: macd needs %d closes, have %d", ErrInsufficientHistory, MACDSlowPeriod, len(closes))
	}
	macdLine, signalLine := MACDSeries(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
	return macdLine[len(macdLine)-1] - signalLine[len(signalLine)-1], nil
}

// latestATR is the Wilder-smoothed 14-period average true range.
func latestATR(bars []domain.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: atr needs %d bars, have %d", ErrInsufficientHistory, period+1, len(bars))
	}

	ranges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		ranges = append(ranges, trueRange(bars[i], bars[i-1].Close))
	}

	var atr float64
	for _, tr := range ranges[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range ranges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, nil
}

func trueRange(b domain.Bar, prevClose float64) float64 {
	hl := b.High - b.Low
	hc := math.Abs(b.High - prevClose)
	lc := math.Abs(b.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// precedingVolumeAverage is the simple mean of the window volumes immediately
// before the last bar; the spike flag compares the last volume against it.
func precedingVolumeAverage(volumes []float64, window int) (float64, error) {
	if len(volumes) < window+1 {
		return 0, fmt.Errorf("%w: volume average needs %d bars, have %d", ErrInsufficientHistory, window+1, len(volumes))
	}
	mean, _ := meanStd(volumes[len(volumes)-1-window : len(volumes)-1])
	return mean, nil
}

// RSISeries is the Wilder RSI over the whole input, NaN until the first full
// period.
func RSISeries(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	series := make([]float64, len(closes))
	for i := range series {
		series[i] = math.NaN()
	}

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}

	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDSeries returns the MACD line and its signal line.
func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64) {
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signal)
	return macdLine, signalLine
}

// EMASeries runs the EMA recurrence over the whole input, seeded with the
// first value, alpha = 2/(span+1). Crossover detection relies on the series
// covering every bar, not a trailing window.
func EMASeries(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	if len(values) == 1 {
		return mean, 0
	}
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}

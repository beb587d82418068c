package signal

import (
	"math"
	"strings"

	"swing-trader/internal/domain"
)

// Compositing constants. The ratios are hand-authored heuristics; none of
// them is calibrated.
const (
	gapATRRatio       = 1.0
	targetATRMultiple = 2.0
	comboRSILower     = 40.0
	comboRSIUpper     = 60.0
	signalSeparator   = ", "
)

type composite struct {
	signals     []string
	display     string
	probability int
	gap         float64
	upperTarget float64
	lowerTarget float64
}

// compose folds the independent heuristics into the signal list, probability
// tier, gap, and price targets for the last bar.
func compose(snap domain.IndicatorSnapshot, trend domain.Trend, currClose, prevClose float64) composite {
	var signals []string
	if label := crossoverLabel(snap.EMAFastPrev, snap.EMASlowPrev, snap.EMAFast, snap.EMASlow); label != domain.NoneLabel {
		signals = append(signals, label)
	}
	combo := comboTriggered(snap.RSI, snap.MACDDiff)
	if combo {
		signals = append(signals, domain.SignalRSIMACDCombo)
	}
	if snap.VolumeSpike {
		signals = append(signals, domain.SignalVolumeSpike)
	}

	display := domain.NoneLabel
	if len(signals) > 0 {
		display = strings.Join(signals, signalSeparator)
	}

	probability := domain.ProbabilityBase
	if trend == domain.TrendBullish && combo {
		probability = domain.ProbabilityAligned
	}

	return composite{
		signals:     signals,
		display:     display,
		probability: probability,
		gap:         significantGap(currClose, prevClose, snap.ATR),
		upperTarget: currClose + targetATRMultiple*snap.ATR,
		lowerTarget: currClose - targetATRMultiple*snap.ATR,
	}
}

// crossoverLabel reports an EMA fast/slow order flip between the prior and
// current bar. A touch (equality) on the prior bar still counts as a cross
// when the current bar separates.
func crossoverLabel(prevFast, prevSlow, currFast, currSlow float64) string {
	if prevFast <= prevSlow && currFast > currSlow {
		return domain.SignalBullishCrossover
	}
	if prevFast >= prevSlow && currFast < currSlow {
		return domain.SignalBearishCrossover
	}
	return domain.NoneLabel
}

// comboTriggered is the neutral-momentum-with-positive-acceleration check:
// RSI strictly inside (40, 60) with a positive MACD diff.
func comboTriggered(rsi, macdDiff float64) bool {
	return rsi > comboRSILower && rsi < comboRSIUpper && macdDiff > 0
}

// significantGap returns the close-to-close change when its magnitude exceeds
// the ATR filter, else 0.
func significantGap(currClose, prevClose, atr float64) float64 {
	gap := currClose - prevClose
	if math.Abs(gap) > gapATRRatio*atr {
		return gap
	}
	return 0
}

package anomaly

import (
	"math"

	"swing-trader/internal/domain"
)

// Feature lookbacks. warmupBars is the longest of them; bars inside the
// warmup window produce no vector.
const (
	returnShortBars  = 1
	returnMidBars    = 5
	returnLongBars   = 10
	volatilityWindow = 10
	volumeWindow     = 20
	warmupBars       = volumeWindow
)

// buildFeatures turns a bar slice into one vector per scoreable bar:
// short/mid/long returns, rolling return volatility, volume z-score, and the
// bar's high-low range relative to its close. The second return value maps
// each vector back to its bar index.
func buildFeatures(bars []domain.Bar) ([][]float64, []int) {
	if len(bars) <= warmupBars {
		return nil, nil
	}

	vectors := make([][]float64, 0, len(bars)-warmupBars)
	indices := make([]int, 0, len(bars)-warmupBars)
	for i := warmupBars; i < len(bars); i++ {
		b := bars[i]
		vectors = append(vectors, []float64{
			barReturn(bars, i, returnShortBars),
			barReturn(bars, i, returnMidBars),
			barReturn(bars, i, returnLongBars),
			returnVolatility(bars, i),
			volumeZScore(bars, i),
			(b.High - b.Low) / b.Close,
		})
		indices = append(indices, i)
	}
	return vectors, indices
}

func barReturn(bars []domain.Bar, i, lookback int) float64 {
	prev := bars[i-lookback].Close
	if prev == 0 {
		return 0
	}
	return bars[i].Close/prev - 1
}

// returnVolatility is the standard deviation of the one-bar returns over the
// volatility window ending at bar i.
func returnVolatility(bars []domain.Bar, i int) float64 {
	var sum, sumSq float64
	for j := i - volatilityWindow + 1; j <= i; j++ {
		r := barReturn(bars, j, 1)
		sum += r
		sumSq += r * r
	}
	n := float64(volatilityWindow)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// volumeZScore positions bar i's volume against the volume window strictly
// preceding it. A flat window scores 0.
func volumeZScore(bars []domain.Bar, i int) float64 {
	var sum, sumSq float64
	for j := i - volumeWindow; j < i; j++ {
		sum += bars[j].Volume
		sumSq += bars[j].Volume * bars[j].Volume
	}
	n := float64(volumeWindow)
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance <= 0 {
		return 0
	}
	return (bars[i].Volume - mean) / math.Sqrt(variance)
}

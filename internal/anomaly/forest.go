package anomaly

import (
	"errors"
	"math"

	goiforest "github.com/narumiruna/go-iforest/pkg/iforest"
)

var errEmptyTrainingSet = errors.New("empty training set")

// forest pairs an isolation forest with the per-feature z-scaler fitted on
// its training matrix, so scoring always sees the same normalization.
type forest struct {
	means []float64
	stds  []float64
	trees *goiforest.IsolationForest
}

func fitForest(samples [][]float64, numTrees, sampleSize int, threshold float64) (*forest, error) {
	if len(samples) == 0 || len(samples[0]) == 0 {
		return nil, errEmptyTrainingSet
	}

	means, stds := fitScaler(samples)
	normalized := make([][]float64, len(samples))
	for i := range samples {
		normalized[i] = scale(samples[i], means, stds)
	}

	trees := goiforest.NewWithOptions(goiforest.Options{
		DetectionType: goiforest.DetectionTypeThreshold,
		Threshold:     threshold,
		NumTrees:      numTrees,
		SampleSize:    sampleSize,
	})
	trees.Fit(normalized)

	return &forest{means: means, stds: stds, trees: trees}, nil
}

// scoreBatch returns one score per sample, clamped to [0,1]. Non-finite
// scores collapse to 0 so a degenerate tree never poisons the output.
func (f *forest) scoreBatch(samples [][]float64) []float64 {
	normalized := make([][]float64, len(samples))
	for i := range samples {
		normalized[i] = scale(samples[i], f.means, f.stds)
	}
	scores := f.trees.Score(normalized)

	out := make([]float64, len(samples))
	for i := range out {
		s := 0.0
		if i < len(scores) {
			s = scores[i]
		}
		switch {
		case math.IsNaN(s) || math.IsInf(s, 0) || s < 0:
			s = 0
		case s > 1:
			s = 1
		}
		out[i] = s
	}
	return out
}

func fitScaler(samples [][]float64) ([]float64, []float64) {
	featureCount := len(samples[0])
	means := make([]float64, featureCount)
	stds := make([]float64, featureCount)
	for j := 0; j < featureCount; j++ {
		for i := range samples {
			means[j] += samples[i][j]
		}
		means[j] /= float64(len(samples))
		for i := range samples {
			d := samples[i][j] - means[j]
			stds[j] += d * d
		}
		stds[j] = math.Sqrt(stds[j] / float64(len(samples)))
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

func scale(in, means, stds []float64) []float64 {
	out := make([]float64, len(in))
	for i := range in {
		out[i] = (in[i] - means[i]) / stds[i]
	}
	return out
}

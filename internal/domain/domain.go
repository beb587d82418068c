package domain

import (
	"errors"
	"fmt"
	"time"
)

// TickerName maps every supported instrument to its display name. Membership
// in this map is what makes a ticker valid anywhere in the system.
var TickerName = map[string]string{
	"AAPL":  "Apple Inc.",
	"MSFT":  "Microsoft Corporation",
	"TSLA":  "Tesla, Inc.",
	"GOOGL": "Alphabet Inc.",
	"AMZN":  "Amazon.com, Inc.",
}

// DefaultTickers is the universe analyzed when the caller does not pick one.
var DefaultTickers = []string{"AAPL", "MSFT", "TSLA", "GOOGL", "AMZN"}

var (
	SupportedPeriods   = []string{"1mo", "3mo", "6mo", "1y"}
	SupportedIntervals = []string{"1d", "1h", "1wk"}
)

const (
	DefaultPeriod   = "1mo"
	DefaultInterval = "1d"

	// TimestampLayout is the human-facing render format for record timestamps.
	TimestampLayout = "2006-01-02 15:04:05"
)

func IsSupportedTicker(ticker string) bool {
	_, ok := TickerName[ticker]
	return ok
}

func IsSupportedPeriod(period string) bool {
	for _, p := range SupportedPeriods {
		if p == period {
			return true
		}
	}
	return false
}

func IsSupportedInterval(interval string) bool {
	for _, i := range SupportedIntervals {
		if i == interval {
			return true
		}
	}
	return false
}

// Bar is one OHLCV sample. Parquet tags serve the backfill archive writer.
type Bar struct {
	Ts     time.Time `json:"ts" parquet:"ts,timestamp"`
	Open   float64   `json:"open" parquet:"open"`
	High   float64   `json:"high" parquet:"high"`
	Low    float64   `json:"low" parquet:"low"`
	Close  float64   `json:"close" parquet:"close"`
	Volume float64   `json:"volume" parquet:"volume"`
}

// BarSeries is the ordered per-instrument bar sequence handed to the engine.
// The engine reads it; it never mutates it.
type BarSeries struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

var ErrMalformedSeries = errors.New("malformed bar series")

// Validate checks the series invariants: strictly increasing timestamps,
// positive prices, non-negative volume.
func (s BarSeries) Validate() error {
	for i, b := range s.Bars {
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return fmt.Errorf("%w: non-positive price at index %d", ErrMalformedSeries, i)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", ErrMalformedSeries, i)
		}
		if i > 0 && !s.Bars[i-1].Ts.Before(b.Ts) {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d", ErrMalformedSeries, i)
		}
	}
	return nil
}

func (s BarSeries) Len() int { return len(s.Bars) }

func (s BarSeries) IsEmpty() bool { return len(s.Bars) == 0 }

// Closes returns the close column in chronological order.
func (s BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume column in chronological order.
func (s BarSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// Last returns the most recent bar; the zero Bar when the series is empty.
func (s BarSeries) Last() Bar {
	if len(s.Bars) == 0 {
		return Bar{}
	}
	return s.Bars[len(s.Bars)-1]
}

type Trend string

const (
	TrendBullish Trend = "Bullish"
	TrendBearish Trend = "Bearish"
	TrendNeutral Trend = "Neutral"
)

func (t Trend) IsValid() bool {
	return t == TrendBullish || t == TrendBearish || t == TrendNeutral
}

// Pattern labels, in classifier precedence order. NoneLabel doubles as the
// empty-signal-list sentinel.
const (
	PatternDoubleBottom     = "Double Bottom"
	PatternInverseHS        = "Inverse Head & Shoulders"
	PatternFallingWedge     = "Falling Wedge"
	PatternRisingWedge      = "Rising Wedge"
	PatternHeadAndShoulders = "Head & Shoulders"
	NoneLabel               = "None"
)

// Signal list entry labels.
const (
	SignalBullishCrossover = "Bullish Crossover"
	SignalBearishCrossover = "Bearish Crossover"
	SignalRSIMACDCombo     = "RSI+MACD Combo"
	SignalVolumeSpike      = "Volume Spike"
)

// Probability tiers. Exactly two values exist: every record carries the base
// tier unless the bullish RSI+MACD alignment lifts it.
const (
	ProbabilityBase    = 60
	ProbabilityAligned = 80
)

// IndicatorSnapshot holds the per-series indicator values at the last bar.
// It lives only for the duration of one engine invocation.
type IndicatorSnapshot struct {
	RSI         float64
	MACDDiff    float64
	ATR         float64
	EMAFast     float64
	EMAFastPrev float64
	EMASlow     float64
	EMASlowPrev float64
	AvgVolume   float64
	VolumeSpike bool
}

// SignalRecord is one fully populated engine output row.
type SignalRecord struct {
	ID           int64           `json:"id,omitempty"`
	Ticker       string          `json:"ticker"`
	Period       string          `json:"period"`
	Interval     string          `json:"interval"`
	GeneratedAt  time.Time       `json:"generated_at"`
	Pattern      string          `json:"pattern"`
	Trend        Trend           `json:"trend"`
	RSI          float64         `json:"rsi"`
	MACD         float64         `json:"macd"`
	ATR          float64         `json:"atr"`
	Volume       int64           `json:"volume"`
	Gap          float64         `json:"gap"`
	CurrentPrice float64         `json:"current_price"`
	UpperTarget  float64         `json:"upper_target"`
	LowerTarget  float64         `json:"lower_target"`
	Probability  int             `json:"probability"`
	Signals      string          `json:"signals"`
	Image        *SignalImageRef `json:"image,omitempty"`
}

type SignalFilter struct {
	Ticker string
	Trend  Trend
	Limit  int
}

type SignalImageRef struct {
	ImageID   int64     `json:"image_id"`
	MimeType  string    `json:"mime_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SignalImageData struct {
	Ref   SignalImageRef
	Bytes []byte
}

// Batch run bookkeeping: one BatchRun per orchestrator invocation, one
// BatchItem per requested instrument.
type BatchStatus string

const (
	BatchItemOK                  BatchStatus = "ok"
	BatchItemNoData              BatchStatus = "no_data"
	BatchItemInsufficientHistory BatchStatus = "insufficient_history"
	BatchItemError               BatchStatus = "error"
)

type BatchRun struct {
	ID         string      `json:"id"`
	Period     string      `json:"period"`
	Interval   string      `json:"interval"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Requested  int         `json:"requested"`
	Succeeded  int         `json:"succeeded"`
	Items      []BatchItem `json:"items,omitempty"`
}

type BatchItem struct {
	Ticker string      `json:"ticker"`
	Status BatchStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// AnomalyPoint is one isolation-forest score for a bar. Telemetry only; the
// engine never reads these.
type AnomalyPoint struct {
	Ticker  string    `json:"ticker"`
	Ts      time.Time `json:"ts"`
	Score   float64   `json:"score"`
	Flagged bool      `json:"flagged"`
}

type ConversationMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
	"strings"

	"swing-trader/internal/domain"
	"swing-trader/internal/signal"
)

const (
	canvasWidth  = 960
	canvasHeight = 640
	maxChartBars = 120
)

var pal = struct {
	background color.RGBA
	grid       color.RGBA
	bull       color.RGBA
	bear       color.RGBA
	wick       color.RGBA
	marker     color.RGBA
	emaFast    color.RGBA
	emaSlow    color.RGBA
	target     color.RGBA
	volume     color.RGBA
}{
	background: color.RGBA{R: 250, G: 252, B: 255, A: 255},
	grid:       color.RGBA{R: 225, G: 232, B: 240, A: 255},
	bull:       color.RGBA{R: 18, G: 140, B: 126, A: 255},
	bear:       color.RGBA{R: 210, G: 61, B: 87, A: 255},
	wick:       color.RGBA{R: 58, G: 64, B: 90, A: 255},
	marker:     color.RGBA{R: 62, G: 106, B: 214, A: 255},
	emaFast:    color.RGBA{R: 62, G: 106, B: 214, A: 255},
	emaSlow:    color.RGBA{R: 255, G: 149, B: 0, A: 255},
	target:     color.RGBA{R: 104, G: 122, B: 146, A: 255},
	volume:     color.RGBA{R: 120, G: 139, B: 164, A: 255},
}

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderSignalChart draws the candlestick chart backing one signal record:
// price candles with both EMA overlays and the ATR target guides on the main
// panel, plus a context panel picked from the heuristics that fired.
func (r *Renderer) RenderSignalChart(bars []domain.Bar, rec domain.SignalRecord) (*domain.SignalImageData, error) {
	series := sortedCopy(bars)
	if len(series) < 2 {
		return nil, fmt.Errorf("need at least 2 bars to render chart")
	}
	if len(series) > maxChartBars {
		series = series[len(series)-maxChartBars:]
	}

	img := image.NewRGBA(image.Rect(0, 0, canvasWidth, canvasHeight))
	fill(img, img.Bounds(), pal.background)

	pricePane := image.Rect(60, 20, canvasWidth-20, (canvasHeight*72)/100)
	contextPane := image.Rect(60, pricePane.Max.Y+16, canvasWidth-20, canvasHeight-30)
	grid(img, pricePane, 8, 6)
	grid(img, contextPane, 8, 3)

	lo, hi := priceBounds(series, rec)
	ax := newAxis(pricePane, lo, hi, len(series))
	candles(img, ax, series)

	closes := closesOf(series)
	polyline(img, ax, signal.EMASeries(closes, signal.EMAFastSpan), pal.emaFast)
	polyline(img, ax, signal.EMASeries(closes, signal.EMASlowSpan), pal.emaSlow)
	if rec.UpperTarget > 0 {
		guide(img, ax, rec.UpperTarget)
	}
	if rec.LowerTarget > 0 {
		guide(img, ax, rec.LowerTarget)
	}

	cursor := ax.x(len(series) - 1)
	line(img, image.Pt(cursor, pricePane.Min.Y), image.Pt(cursor, pricePane.Max.Y), pal.marker)

	switch {
	case strings.Contains(rec.Signals, domain.SignalVolumeSpike):
		volumePanel(img, contextPane, series)
	case strings.Contains(rec.Signals, domain.SignalRSIMACDCombo):
		macdPanel(img, contextPane, closes)
	default:
		rsiPanel(img, contextPane, closes)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &domain.SignalImageData{
		Ref: domain.SignalImageRef{
			MimeType: "image/png",
			Width:    canvasWidth,
			Height:   canvasHeight,
		},
		Bytes: buf.Bytes(),
	}, nil
}

func sortedCopy(in []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Before(out[j].Ts) })
	return out
}

func closesOf(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = bars[i].Close
	}
	return out
}

// priceBounds spans the bar range plus both targets, so the guide lines
// always land inside the panel.
func priceBounds(bars []domain.Bar, rec domain.SignalRecord) (float64, float64) {
	lo, hi := bars[0].Low, bars[0].High
	for _, b := range bars {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
	}
	if rec.LowerTarget > 0 {
		lo = math.Min(lo, rec.LowerTarget)
	}
	hi = math.Max(hi, rec.UpperTarget)
	return lo, hi
}

// axis maps series indices and values onto a pixel rectangle. Pixel rows grow
// downward, so hi lands on the top edge.
type axis struct {
	rect   image.Rectangle
	lo, hi float64
	n      int
}

func newAxis(rect image.Rectangle, lo, hi float64, n int) axis {
	if hi <= lo {
		hi = lo + 1
	}
	return axis{rect: rect, lo: lo, hi: hi, n: n}
}

func (a axis) x(i int) int {
	if a.n <= 1 {
		return a.rect.Min.X
	}
	return a.rect.Min.X + (i*(a.rect.Dx()-1))/(a.n-1)
}

func (a axis) y(v float64) int {
	ratio := (v - a.lo) / (a.hi - a.lo)
	ratio = math.Max(0, math.Min(1, ratio))
	return a.rect.Max.Y - int(ratio*float64(a.rect.Dy()-1))
}

func candles(img *image.RGBA, ax axis, bars []domain.Bar) {
	bodyW := max(3, (ax.rect.Dx()-10)/len(bars)-1)
	for i, b := range bars {
		x := ax.x(i)
		line(img, image.Pt(x, ax.y(b.High)), image.Pt(x, ax.y(b.Low)), pal.wick)

		top, bottom := ax.y(b.Close), ax.y(b.Open)
		if top > bottom {
			top, bottom = bottom, top
		}
		if bottom-top < 2 {
			bottom = top + 2
		}
		body := pal.bull
		if b.Close < b.Open {
			body = pal.bear
		}
		fill(img, image.Rect(x-bodyW/2, top, x+bodyW/2+1, bottom+1), body)
	}
}

func rsiPanel(img *image.RGBA, rect image.Rectangle, closes []float64) {
	ax := newAxis(rect, 0, 100, len(closes))
	guide(img, ax, 30)
	guide(img, ax, 70)
	polyline(img, ax, signal.RSISeries(closes, signal.RSIPeriod), pal.emaFast)
}

func macdPanel(img *image.RGBA, rect image.Rectangle, closes []float64) {
	macd, trigger := signal.MACDSeries(closes,
		signal.MACDFastPeriod, signal.MACDSlowPeriod, signal.MACDSignalPeriod)
	lo, hi := finiteBounds(macd, trigger)
	ax := newAxis(rect, lo, hi, len(macd))
	guide(img, ax, 0)
	polyline(img, ax, macd, pal.emaFast)
	polyline(img, ax, trigger, pal.emaSlow)
}

// volumePanel draws raw volume columns with the trailing average line, the
// same window the spike heuristic checks.
func volumePanel(img *image.RGBA, rect image.Rectangle, bars []domain.Bar) {
	volumes := make([]float64, len(bars))
	for i := range bars {
		volumes[i] = bars[i].Volume
	}

	_, hi := finiteBounds(volumes)
	if hi <= 0 {
		hi = 1
	}
	ax := newAxis(rect, 0, hi, len(volumes))
	columns(img, ax, volumes)
	polyline(img, ax, trailingMean(volumes, signal.VolumeWindow), pal.emaSlow)
}

// trailingMean averages the window values before each index, NaN until a full
// window exists.
func trailingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		if i < window {
			out[i] = math.NaN()
			sum += v
			continue
		}
		out[i] = sum / float64(window)
		sum += v - values[i-window]
	}
	return out
}

// polyline connects consecutive finite points; NaN gaps break the line.
func polyline(img *image.RGBA, ax axis, series []float64, col color.RGBA) {
	prev := image.Pt(-1, -1)
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			prev = image.Pt(-1, -1)
			continue
		}
		pt := image.Pt(ax.x(i), ax.y(v))
		if prev.X >= 0 {
			line(img, prev, pt, col)
		}
		prev = pt
	}
}

func columns(img *image.RGBA, ax axis, values []float64) {
	w := max(1, (ax.rect.Dx()-10)/len(values)-1)
	base := ax.y(0)
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		y := ax.y(v)
		x := ax.x(i)
		fill(img, image.Rect(x-w/2, min(y, base), x+w/2+1, max(y, base)+1), pal.volume)
	}
}

func grid(img *image.RGBA, rect image.Rectangle, cols, rows int) {
	for i := 0; i <= cols; i++ {
		x := rect.Min.X + (rect.Dx()*i)/max(1, cols)
		line(img, image.Pt(x, rect.Min.Y), image.Pt(x, rect.Max.Y), pal.grid)
	}
	for i := 0; i <= rows; i++ {
		y := rect.Min.Y + (rect.Dy()*i)/max(1, rows)
		line(img, image.Pt(rect.Min.X, y), image.Pt(rect.Max.X, y), pal.grid)
	}
}

// guide draws a horizontal reference line at a value on the axis scale.
func guide(img *image.RGBA, ax axis, v float64) {
	y := ax.y(v)
	line(img, image.Pt(ax.rect.Min.X, y), image.Pt(ax.rect.Max.X, y), pal.target)
}

// finiteBounds scans any number of series for the finite min and max,
// widening a degenerate range to keep axes usable.
func finiteBounds(series ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 1
	}
	if lo == hi {
		hi = lo + 1
	}
	return lo, hi
}

func fill(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	draw.Draw(img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

// line draws p to q. Grids, wicks and guides are axis-aligned and take the
// rectangle fill path; indicator polylines fall through to Bresenham.
func line(img *image.RGBA, p, q image.Point, col color.RGBA) {
	switch {
	case p.X == q.X:
		fill(img, image.Rect(p.X, min(p.Y, q.Y), p.X+1, max(p.Y, q.Y)+1), col)
	case p.Y == q.Y:
		fill(img, image.Rect(min(p.X, q.X), p.Y, max(p.X, q.X)+1, p.Y+1), col)
	default:
		bresenham(img, p, q, col)
	}
}

func bresenham(img *image.RGBA, p, q image.Point, col color.RGBA) {
	dx, dy := q.X-p.X, q.Y-p.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	sx, sy := 1, 1
	if p.X > q.X {
		sx = -1
	}
	if p.Y > q.Y {
		sy = -1
	}

	err := dx - dy
	for {
		if p.In(img.Bounds()) {
			img.SetRGBA(p.X, p.Y, col)
		}
		if p == q {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			p.X += sx
		}
		if e2 < dx {
			err += dx
			p.Y += sy
		}
	}
}

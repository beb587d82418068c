package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"swing-trader/internal/domain"
)

// GetSignals godoc
// @Summary      Get stored swing-trade signals
// @Description  Returns recent signal records, optionally filtered by ticker and trend
// @Tags         signals
// @Produce      json
// @Param        ticker  query  string  false  "Ticker (e.g., AAPL, TSLA)"
// @Param        trend   query  string  false  "Trend (Bullish, Bearish, Neutral)"
// @Param        limit   query  int     false  "Number of records (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals [get]
func (h *Handler) GetSignals(c *gin.Context) {
	if h.signals == nil {
		replyUnavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.list-signals")
	defer span.End()

	ticker, ok := queryTicker(c)
	if !ok {
		return
	}
	if ticker != "" {
		span.SetAttributes(attribute.String("ticker", ticker))
	}

	filter := domain.SignalFilter{Ticker: ticker}
	if rawTrend := strings.TrimSpace(c.Query("trend")); rawTrend != "" {
		trend := domain.Trend(rawTrend)
		if !trend.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trend must be Bullish, Bearish or Neutral"})
			return
		}
		filter.Trend = trend
	}

	limit, ok := queryLimit(c, 50, 200)
	if !ok {
		return
	}
	filter.Limit = limit

	records, err := h.signals.ListSignals(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": records})
}

type generateRequest struct {
	Tickers  []string `json:"tickers"`
	Period   string   `json:"period"`
	Interval string   `json:"interval"`
}

// validate normalizes the ticker list in place and returns the message for
// the first rejected field.
func (r *generateRequest) validate() string {
	for i, t := range r.Tickers {
		r.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		if !domain.IsSupportedTicker(r.Tickers[i]) {
			return "unsupported ticker: " + r.Tickers[i]
		}
	}
	if r.Period != "" && !domain.IsSupportedPeriod(r.Period) {
		return "unsupported period: " + r.Period
	}
	if r.Interval != "" && !domain.IsSupportedInterval(r.Interval) {
		return "unsupported interval: " + r.Interval
	}
	return ""
}

// GenerateSignals godoc
// @Summary      Run a signal batch now
// @Description  Analyzes the requested tickers (default: full universe) and returns the generated records
// @Tags         signals
// @Accept       json
// @Produce      json
// @Param        request  body  generateRequest  false  "Batch parameters"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals/generate [post]
func (h *Handler) GenerateSignals(c *gin.Context) {
	if h.signals == nil {
		replyUnavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.generate-signals")
	defer span.End()

	// An empty body means "run the default universe".
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg, "supported_tickers": domain.DefaultTickers})
		return
	}

	run, records, err := h.signals.RunBatch(ctx, req.Tickers, req.Period, req.Interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run, "signals": records})
}

// GetSignalImage godoc
// @Summary      Fetch the rendered chart for a signal
// @Description  Streams the PNG chart stored for the given signal id
// @Tags         signals
// @Produce      png
// @Param        id  path  int  true  "Signal ID"
// @Success      200  {file}  binary
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals/{id}/image [get]
func (h *Handler) GetSignalImage(c *gin.Context) {
	if h.signals == nil {
		replyUnavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.signal-image")
	defer span.End()

	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return
	}

	imageData, err := h.signals.GetSignalImage(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if imageData == nil || len(imageData.Bytes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal image not found"})
		return
	}

	c.Data(http.StatusOK, imageData.Ref.MimeType, imageData.Bytes)
}

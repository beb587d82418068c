package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"swing-trader/internal/domain"
)

// GetBars godoc
// @Summary      Get recent OHLCV bars
// @Description  Returns the stored bar tail for a ticker in chronological order
// @Tags         bars
// @Produce      json
// @Param        ticker    query  string  true   "Ticker (e.g., AAPL, TSLA)"
// @Param        interval  query  string  false  "Bar interval (1d, 1h, 1wk)"  default(1d)
// @Param        limit     query  int     false  "Number of bars (default 120, max 500)"  default(120)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/bars [get]
func (h *Handler) GetBars(c *gin.Context) {
	if h.bars == nil {
		replyUnavailable(c, "bar service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.list-bars")
	defer span.End()

	ticker, ok := queryTicker(c)
	if !ok {
		return
	}
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}
	span.SetAttributes(attribute.String("ticker", ticker))

	interval := strings.TrimSpace(c.DefaultQuery("interval", domain.DefaultInterval))
	if !domain.IsSupportedInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported interval: " + interval})
		return
	}

	limit, ok := queryLimit(c, 120, 500)
	if !ok {
		return
	}

	bars, err := h.bars.RecentBars(ctx, ticker, interval, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "interval": interval, "bars": bars})
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAnomalies godoc
// @Summary      Get recently flagged anomalies
// @Description  Returns isolation-forest anomaly points, newest first
// @Tags         anomalies
// @Produce      json
// @Param        ticker  query  string  false  "Ticker (e.g., AAPL, TSLA)"
// @Param        limit   query  int     false  "Number of points (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/anomalies [get]
func (h *Handler) GetAnomalies(c *gin.Context) {
	if h.anomalies == nil {
		replyUnavailable(c, "anomaly store")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.list-anomalies")
	defer span.End()

	ticker, ok := queryTicker(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, 50, 200)
	if !ok {
		return
	}

	points, err := h.anomalies.ListRecent(ctx, ticker, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"anomalies": points})
}

package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRuns godoc
// @Summary      Get recent batch runs
// @Description  Returns batch run summaries, newest first
// @Tags         runs
// @Produce      json
// @Param        limit  query  int  false  "Number of runs (default 20, max 100)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/runs [get]
func (h *Handler) GetRuns(c *gin.Context) {
	if h.signals == nil {
		replyUnavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.list-runs")
	defer span.End()

	limit, ok := queryLimit(c, 20, 100)
	if !ok {
		return
	}

	runs, err := h.signals.ListRecentRuns(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRunItems godoc
// @Summary      Get per-ticker outcomes of one batch run
// @Tags         runs
// @Produce      json
// @Param        id  path  string  true  "Run ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/runs/{id}/items [get]
func (h *Handler) GetRunItems(c *gin.Context) {
	if h.signals == nil {
		replyUnavailable(c, "signal service")
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "http-api.run-items")
	defer span.End()

	runID := strings.TrimSpace(c.Param("id"))
	if runID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id is required"})
		return
	}

	items, err := h.signals.GetRunItems(ctx, runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": runID, "items": items})
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"swing-trader/internal/domain"
	"swing-trader/internal/service"
)

// AnomalyLister is the slice of the anomaly repository the API reads from.
type AnomalyLister interface {
	ListRecent(ctx context.Context, ticker string, limit int) ([]domain.AnomalyPoint, error)
}

type Handler struct {
	tracer    trace.Tracer
	signals   *service.SignalService
	bars      *service.BarService
	anomalies AnomalyLister
	hub       *Hub
}

func New(
	tracer trace.Tracer,
	signals *service.SignalService,
	bars *service.BarService,
	anomalies AnomalyLister,
	hub *Hub,
) *Handler {
	return &Handler{
		tracer:    tracer,
		signals:   signals,
		bars:      bars,
		anomalies: anomalies,
		hub:       hub,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/signals", h.GetSignals)
	r.POST("/api/signals/generate", h.GenerateSignals)
	r.GET("/api/signals/:id/image", h.GetSignalImage)
	r.GET("/api/bars", h.GetBars)
	r.GET("/api/runs", h.GetRuns)
	r.GET("/api/runs/:id/items", h.GetRunItems)
	r.GET("/api/anomalies", h.GetAnomalies)
	r.GET("/api/ws", h.StreamSignals)
}

// Health godoc
// @Summary      Liveness check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// replyUnavailable answers for endpoints whose backing service was not wired
// at startup, e.g. when the process runs without a database.
func replyUnavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured"})
}

// queryLimit parses the optional limit parameter, enforcing 1..ceil.
func queryLimit(c *gin.Context, def, ceil int) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > ceil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", ceil)})
		return 0, false
	}
	return n, true
}

// queryTicker normalizes the ticker parameter and rejects symbols outside the
// traded universe. Empty is allowed; callers that need one check themselves.
func queryTicker(c *gin.Context) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	if ticker != "" && !domain.IsSupportedTicker(ticker) {
		rejectTicker(c, ticker)
		return "", false
	}
	return ticker, true
}

func rejectTicker(c *gin.Context, ticker string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "unsupported ticker: " + ticker,
		"supported_tickers": domain.DefaultTickers,
	})
}

package forecast

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for forecasts
type Handler struct {
	engine *Engine
}

// NewHandler creates a new forecast handler
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up forecast routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/forecast/metrics", h.ListMetrics)
	r.GET("/forecast/:metric", h.GetForecast)
}

// ListMetrics handles GET /forecast/metrics
func (h *Handler) ListMetrics(c *gin.Context) {
	names, err := h.engine.ListMetrics(c.Request.Context(), DefaultLookback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"metrics": names})
}

// GetForecast handles GET /forecast/:metric
func (h *Handler) GetForecast(c *gin.Context) {
	horizon := DefaultHorizon
	if v := c.Query("horizon"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 48 {
			horizon = parsed
		}
	}
	lookback := DefaultLookback
	if v := c.Query("lookbackHours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 24*30 {
			lookback = time.Duration(parsed) * time.Hour
		}
	}

	result, err := h.engine.Generate(c.Request.Context(), c.Param("metric"), horizon, lookback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "forecast_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"forecast": result,
		"concern":  EvaluateConcern(result),
	})
}

package correlation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/riskpulse/riskpulse/internal/signal"
)

// Handler provides HTTP endpoints for correlation queries
type Handler struct {
	correlator *Correlator
}

// NewHandler creates a new correlation handler
func NewHandler(correlator *Correlator) *Handler {
	return &Handler{correlator: correlator}
}

// RegisterRoutes sets up correlation routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/correlation/graph/:id", h.GetGraph)
	r.GET("/correlation/:id", h.Correlate)
}

// Correlate handles GET /correlation/:id
func (h *Handler) Correlate(c *gin.Context) {
	k := queryInt(c, "k", DefaultK)

	neighbors, err := h.correlator.Correlate(c.Request.Context(), c.Param("id"), k)
	if err != nil {
		if errors.Is(err, signal.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "signal not found: " + c.Param("id"),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "correlation_failed",
			"message": err.Error(),
		})
		return
	}

	if neighbors == nil {
		neighbors = []Neighbor{}
	}
	c.JSON(http.StatusOK, gin.H{
		"signalId":  c.Param("id"),
		"neighbors": neighbors,
	})
}

// GetGraph handles GET /correlation/graph/:id
func (h *Handler) GetGraph(c *gin.Context) {
	limits := GraphLimits{
		Depth: queryInt(c, "depth", 2),
		K:     queryInt(c, "k", DefaultK),
	}

	graph, err := h.correlator.BuildGraph(c.Request.Context(), c.Param("id"), limits)
	if err != nil {
		if errors.Is(err, signal.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "signal not found: " + c.Param("id"),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "graph_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, graph)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if raw := c.Query(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

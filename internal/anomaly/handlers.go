package anomaly

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for anomaly detection
type Handler struct {
	service *Service
}

// NewHandler creates a new anomaly handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up anomaly routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/anomaly/run", h.RunDetection)
	r.GET("/anomaly/recent", h.RecentEvents)
	r.GET("/anomaly/status", h.Status)
}

// RunDetection handles POST /anomaly/run — a manually triggered scan.
func (h *Handler) RunDetection(c *gin.Context) {
	events, err := h.service.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "detection_failed",
			"message": err.Error(),
		})
		return
	}

	if events == nil {
		events = []*Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events":   events,
		"detected": len(events),
	})
}

// RecentEvents handles GET /anomaly/recent
func (h *Handler) RecentEvents(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	events, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	if events == nil {
		events = []*Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Status handles GET /anomaly/status
func (h *Handler) Status(c *gin.Context) {
	summary, err := h.service.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "status_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": summary})
}

package risk

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/riskpulse/riskpulse/internal/signal"
)

// Handler provides HTTP endpoints for risk scoring and weight configuration
type Handler struct {
	service *Service
}

// NewHandler creates a new risk handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up risk routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signals/:id/score", h.ScoreSignal)
	r.GET("/signals/:id/score", h.ScoreSignal)
	r.POST("/signals/score-batch", h.ScoreBatch)
	r.GET("/risk/weights", h.GetWeights)
	r.PUT("/risk/weights", h.UpdateWeights)
	r.POST("/risk/weights/reset", h.ResetWeights)
}

// ScoreSignal handles GET and POST /signals/:id/score.
// Scoring is idempotent, so the read view recomputes and persists the same
// breakdown the cycle would.
func (h *Handler) ScoreSignal(c *gin.Context) {
	result, err := h.service.ScoreSignal(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, signal.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Signal not found",
			})
		case errors.Is(err, ErrMissingSignalData):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "missing_signal_data",
				"message": err.Error(),
			})
		case errors.Is(err, ErrInvalidConfiguration):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "invalid_configuration",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "scoring_failed",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ScoreBatchRequest is the body of POST /signals/score-batch
type ScoreBatchRequest struct {
	SignalIDs []string `json:"signalIds" binding:"required,min=1,max=500"`
}

// ScoreBatch handles POST /signals/score-batch. Per-signal failures do not
// abort the batch; they come back as item errors.
func (h *Handler) ScoreBatch(c *gin.Context) {
	var req ScoreBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	results, failures := h.service.ScoreBatch(c.Request.Context(), req.SignalIDs)
	c.JSON(http.StatusOK, gin.H{
		"results":  results,
		"failures": failures,
	})
}

// GetWeights handles GET /risk/weights
func (h *Handler) GetWeights(c *gin.Context) {
	weights, err := h.service.GetWeights(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "weights_unavailable",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"weights": weights})
}

// UpdateWeights handles PUT /risk/weights
func (h *Handler) UpdateWeights(c *gin.Context) {
	var w Weights
	if err := c.ShouldBindJSON(&w); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	updated, err := h.service.UpdateWeights(c.Request.Context(), w)
	if err != nil {
		if errors.Is(err, ErrInvalidConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_configuration",
				"message": "Weights must be non-negative and sum to 1.0 (±0.02)",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "update_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"weights": updated})
}

// ResetWeights handles POST /risk/weights/reset
func (h *Handler) ResetWeights(c *gin.Context) {
	weights, err := h.service.ResetWeights(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "reset_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"weights": weights})
}

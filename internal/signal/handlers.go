package signal

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riskpulse/riskpulse/internal/pagination"
)

// Handler provides HTTP endpoints for signals
type Handler struct {
	service *Service
}

// NewHandler creates a new signal handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up signal routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signals", h.IngestSignal)
	r.GET("/signals", h.ListSignals)
	r.GET("/signals/:id", h.GetSignal)
}

// IngestRequest is the body of POST /signals
type IngestRequest struct {
	Source         string           `json:"source" binding:"required"`
	SourceID       string           `json:"sourceId"`
	Title          string           `json:"title"`
	Content        string           `json:"content" binding:"required"`
	Timestamp      *time.Time       `json:"timestamp"`
	SentimentScore *float64         `json:"sentimentScore"`
	SentimentLabel string           `json:"sentimentLabel"`
	Urgency        string           `json:"urgency"`
	Entities       []Entity         `json:"entities"`
	Summary        string           `json:"summary"`
	Embedding      []float64        `json:"embedding"`
	Components     *ComponentInputs `json:"components"`
	Metric         *MetricSample    `json:"metric"`
}

// IngestSignal handles POST /signals
func (h *Handler) IngestSignal(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	sig := &Signal{
		Source:         Source(req.Source),
		SourceID:       req.SourceID,
		Title:          req.Title,
		Content:        req.Content,
		SentimentScore: req.SentimentScore,
		SentimentLabel: SentimentLabel(req.SentimentLabel),
		Urgency:        req.Urgency,
		Entities:       req.Entities,
		Summary:        req.Summary,
		Embedding:      req.Embedding,
		Components:     req.Components,
		Metric:         req.Metric,
	}
	if req.Timestamp != nil {
		sig.Timestamp = req.Timestamp.UTC()
	}

	created, err := h.service.Ingest(c.Request.Context(), sig)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "ingest_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"signal": created})
}

// GetSignal handles GET /signals/:id
func (h *Handler) GetSignal(c *gin.Context) {
	sig, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Signal not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signal": sig})
}

// ListSignals handles GET /signals
func (h *Handler) ListSignals(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	q := ListQuery{
		Source: c.Query("source"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	}

	signals, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	page, next, hasMore := pagination.ComputePage(signals, limit, func(s *Signal) (time.Time, string) {
		return s.Timestamp, s.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"signals":    page,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

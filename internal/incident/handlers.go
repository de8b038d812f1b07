package incident

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for incidents
type Handler struct {
	manager *Manager
}

// NewHandler creates a new incident handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up incident routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/incidents", h.ListIncidents)
	r.GET("/incidents/:id", h.GetIncident)
	r.POST("/incidents/:id/acknowledge", h.transitionHandler(ActionAcknowledge))
	r.POST("/incidents/:id/resolve", h.transitionHandler(ActionResolve))
	r.POST("/incidents/:id/dismiss", h.transitionHandler(ActionDismiss))
	r.POST("/incidents/:id/reopen", h.transitionHandler(ActionReopen))
	r.GET("/incidents/:id/timeline", h.GetTimeline)
	r.POST("/incidents/:id/notes", h.AddNote)
	r.GET("/incidents/:id/notes", h.ListNotes)
}

// ListIncidents handles GET /incidents
func (h *Handler) ListIncidents(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	incidents, err := h.manager.List(c.Request.Context(), ListQuery{
		Status:   c.Query("status"),
		Severity: c.Query("severity"),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	if incidents == nil {
		incidents = []*Incident{}
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}

// GetIncident handles GET /incidents/:id
func (h *Handler) GetIncident(c *gin.Context) {
	inc, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Incident not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "lookup_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"incident": inc})
}

func (h *Handler) transitionHandler(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		inc, err := h.manager.Transition(c.Request.Context(), c.Param("id"), action)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{
					"error":   "not_found",
					"message": "Incident not found",
				})
			case errors.Is(err, ErrInvalidTransition):
				c.JSON(http.StatusConflict, gin.H{
					"error":   "invalid_transition",
					"message": err.Error(),
				})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "transition_failed",
					"message": err.Error(),
				})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"incident": inc})
	}
}

// GetTimeline handles GET /incidents/:id/timeline
func (h *Handler) GetTimeline(c *gin.Context) {
	entries, err := h.manager.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Incident not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "timeline_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"timeline": entries})
}

// AddNoteRequest is the body of POST /incidents/:id/notes
type AddNoteRequest struct {
	Content string `json:"content" binding:"required"`
	Author  string `json:"author"`
}

// AddNote handles POST /incidents/:id/notes
func (h *Handler) AddNote(c *gin.Context) {
	var req AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	author := req.Author
	if author == "" {
		author = "anonymous"
	}

	note, err := h.manager.AddNote(c.Request.Context(), c.Param("id"), req.Content, author)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Incident not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "note_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"note": note})
}

// ListNotes handles GET /incidents/:id/notes
func (h *Handler) ListNotes(c *gin.Context) {
	notes, err := h.manager.ListNotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Incident not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": err.Error(),
		})
		return
	}

	if notes == nil {
		notes = []*Note{}
	}
	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/axolutly-go/internal/app"
	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// SessionService is the part of the session manager the HTTP layer drives
type SessionService interface {
	Start(req domain.DownloadRequest) (string, error)
	Get(id string) (*domain.SessionRecord, error)
	List(filters map[string]interface{}) ([]*domain.SessionRecord, error)
	Stats() (*domain.SessionStats, error)
	Cancel(id string) error
	ResolveConfirmation(id string, yes bool) error
	NotifyAuthCompleted(id string) error
	Subscribe(id string) (<-chan domain.Event, func(), error)
}

// SessionHandler handles download session requests
type SessionHandler struct {
	sessions SessionService
	config   *domain.DownloadConfig
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler. config supplies the
// quality and output directory of requests that omit them.
func NewSessionHandler(sessions SessionService, config *domain.DownloadConfig, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		config:   config,
		logger:   logger,
	}
}

// StartSessionRequest represents a request to start a download
type StartSessionRequest struct {
	URL       string `json:"url" binding:"required"`
	Quality   string `json:"quality,omitempty"`
	OutputDir string `json:"output_dir,omitempty"`
}

// ConfirmationRequest answers a replace question
type ConfirmationRequest struct {
	Replace *bool `json:"replace" binding:"required"`
}

// StartSession handles POST /api/v1/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	var body StartSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	qualityStr := body.Quality
	if qualityStr == "" {
		qualityStr = h.config.DefaultQuality
	}
	quality, err := domain.ParseQuality(qualityStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outputDir := body.OutputDir
	if outputDir == "" {
		outputDir = h.config.OutputDir
	}

	req, err := domain.NewDownloadRequest(body.URL, quality, outputDir)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.sessions.Start(req)
	if err != nil {
		h.logger.Error("Failed to start session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	record, err := h.sessions.Get(id)
	if err != nil {
		c.JSON(http.StatusCreated, gin.H{"id": id})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// GetSession handles GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	record, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	filters := make(map[string]interface{})
	for _, key := range []string{"state", "platform", "url"} {
		if v := c.Query(key); v != "" {
			filters[key] = v
		}
	}

	records, err := h.sessions.List(filters)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/sessions/stats
func (h *SessionHandler) GetStats(c *gin.Context) {
	stats, err := h.sessions.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CancelSession handles POST /api/v1/sessions/:id/cancel
func (h *SessionHandler) CancelSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Cancel(id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancel requested"})
}

// ResolveConfirmation handles POST /api/v1/sessions/:id/confirmation
func (h *SessionHandler) ResolveConfirmation(c *gin.Context) {
	var body ConfirmationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.ResolveConfirmation(c.Param("id"), *body.Replace); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "answer delivered"})
}

// AuthCompleted handles POST /api/v1/sessions/:id/auth/complete
func (h *SessionHandler) AuthCompleted(c *gin.Context) {
	if err := h.sessions.NotifyAuthCompleted(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sign-in completion delivered"})
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrNoPendingConfirmation):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Session request failed", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

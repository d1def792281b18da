package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
var Version = "dev"

// Runner reports whether a background worker is running
type Runner interface {
	IsRunning() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	janitor Runner
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(janitor Runner) *HealthHandler {
	return &HealthHandler{
		janitor: janitor,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Cookies struct {
		JanitorRunning bool `json:"janitor_running"`
	} `json:"cookies"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Cookies.JanitorRunning = h.janitor.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.janitor.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "cookie janitor not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

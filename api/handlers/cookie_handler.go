package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CookieService is the part of the cookie store exposed over HTTP
type CookieService interface {
	Purge(domainName string) error
	EvictExpired() (int, error)
}

// CookieHandler handles stored credential requests
type CookieHandler struct {
	store  CookieService
	logger *zap.Logger
}

// NewCookieHandler creates a new cookie handler
func NewCookieHandler(store CookieService, logger *zap.Logger) *CookieHandler {
	return &CookieHandler{
		store:  store,
		logger: logger,
	}
}

// PurgeCookies handles DELETE /api/v1/cookies/:domain
func (h *CookieHandler) PurgeCookies(c *gin.Context) {
	domainName := c.Param("domain")
	if err := h.store.Purge(domainName); err != nil {
		h.logger.Error("Failed to purge cookies", zap.String("domain", domainName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cookies purged", "domain": domainName})
}

// EvictExpired handles POST /api/v1/cookies/evict
func (h *CookieHandler) EvictExpired(c *gin.Context) {
	evicted, err := h.store.EvictExpired()
	if err != nil {
		h.logger.Error("Failed to evict cookies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"evicted": evicted})
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/axolutly-go/api/handlers"
	"github.com/yourusername/axolutly-go/api/middleware"
	"github.com/yourusername/axolutly-go/internal/domain"
	"github.com/yourusername/axolutly-go/pkg/logger"
)

// RouterDeps holds what the HTTP API serves
type RouterDeps struct {
	Sessions    handlers.SessionService
	Cookies     handlers.CookieService
	Janitor     handlers.Runner
	Download    *domain.DownloadConfig
	LogsDir     string
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger // optional
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.MultiLogger))
	router.Use(middleware.Recovery(deps.Logger, deps.MultiLogger))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Janitor)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Download, deps.Logger)
		eventHandler := handlers.NewEventStreamHandler(deps.Sessions, deps.Logger)
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", sessionHandler.StartSession)
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/stats", sessionHandler.GetStats)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.GET("/:id/events", eventHandler.HandleWebSocket)
			sessions.POST("/:id/cancel", sessionHandler.CancelSession)
			sessions.POST("/:id/confirmation", sessionHandler.ResolveConfirmation)
			sessions.POST("/:id/auth/complete", sessionHandler.AuthCompleted)
		}

		cookieHandler := handlers.NewCookieHandler(deps.Cookies, deps.Logger)
		cookies := v1.Group("/cookies")
		{
			cookies.DELETE("/:domain", cookieHandler.PurgeCookies)
			cookies.POST("/evict", cookieHandler.EvictExpired)
		}

		if deps.LogsDir != "" {
			logHandler := handlers.NewLogHandler(deps.LogsDir)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

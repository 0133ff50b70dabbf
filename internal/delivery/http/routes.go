package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"PriceScanner/internal/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg config.ServerConfig, handler *Handler, logger *slog.Logger) *gin.Engine {
	if cfg.Mode == gin.ReleaseMode || cfg.Mode == gin.DebugMode || cfg.Mode == gin.TestMode {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", handler.Metrics)

	router.GET("/scrape-status", handler.ScrapeStatus)
	router.POST("/scrape", handler.TriggerScrape)

	return router
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkscan/internal/logger"
)

// QueueInspector reports the pending depth of the check queue. Implemented
// by queue.Producer; may be nil when the server runs without a queue.
type QueueInspector interface {
	Depth(ctx context.Context) (int64, error)
}

// SetupRouter creates and configures the Gin router with all routes.
func SetupRouter(
	log logger.Interface,
	scans *ScansHandler,
	prefs *PreferencesHandler,
	pages *PagesHandler,
	queue QueueInspector,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		payload := gin.H{"status": "ok"}
		if queue != nil {
			if depth, err := queue.Depth(c.Request.Context()); err == nil {
				payload["queue_depth"] = depth
			} else {
				payload["queue"] = "unavailable"
			}
		}
		c.JSON(http.StatusOK, payload)
	})

	v1 := router.Group("/api/v1")

	v1.POST("/scans", scans.CreateScan)
	v1.GET("/scans", scans.ListScans)
	v1.GET("/scans/:id", scans.GetScan)
	v1.GET("/scans/:id/links", scans.ListScanLinks)
	v1.POST("/scans/:id/stop", scans.StopScan)
	v1.POST("/scans/:id/redispatch", scans.RedispatchScan)
	v1.DELETE("/scans/:id", scans.DeleteScan)

	v1.GET("/sites/:site_id/preferences", prefs.GetPreferences)
	v1.PUT("/sites/:site_id/preferences", prefs.UpdatePreferences)

	v1.POST("/pages/deleted", pages.PageDeleted)

	return router
}

// loggingMiddleware creates a middleware that logs HTTP requests.
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", statusCode,
			"latency", latency,
		)
	}
}

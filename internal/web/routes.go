package web

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, syncSecret string, rps float64, burst int) {
	// Health endpoints (no auth, no rate limit)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// Sync API, authenticated by the scheduler's shared secret
	api := r.Group("/api")
	api.Use(RateLimiter(rps, burst))
	api.Use(RequireSyncSecret(syncSecret))
	{
		api.POST("/sync/run", h.TriggerSync)
		api.GET("/sync/status", h.SyncStatus)
		api.GET("/feed.ics", h.CalendarFeed)
	}
}

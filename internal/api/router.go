package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"lenstracker-reminders/config"
	"lenstracker-reminders/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, server config.ServerConfig, adminSecret string) *gin.Engine {
	r := gin.Default()
	r.Use(mw.CORS(server.CORSOrigins))

	rateLimiter := mw.RateLimiter(rate.Limit(server.RateLimitPerSec), server.RateLimitBurst)

	// The VAPID key only changes on restart.
	cacheStore := cache.New(5*time.Minute, 10*time.Minute)
	caching := mw.Cache(cacheStore, 5*time.Minute)

	r.GET("/health", handler.Health)

	api := r.Group("/")
	api.Use(rateLimiter)
	{
		api.GET("/push/vapid-public-key", caching, handler.GetVAPIDPublicKey)
		api.POST("/push/register", handler.RegisterPush)
		api.POST("/push/test", handler.TestPush)

		api.POST("/cycle/upsert", handler.UpsertCycle)
		api.POST("/cycle/clear", handler.ClearCycle)
		api.GET("/cycle", handler.GetCycle)

		api.POST("/admin/sweep", mw.AdminAuth(adminSecret), handler.RunSweep)
	}

	return r
}

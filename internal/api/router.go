package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cleanops_backend/platform/config"
	"cleanops_backend/platform/httpkit"
	"cleanops_backend/platform/logger"
)

// NewRouter builds the gin engine with the platform middleware stack, the
// coordination routes, and the operational endpoints.
func NewRouter(cfg config.HTTPConfig, handler *Handler, metricsHandler http.Handler, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(httpkit.RequestID())
	router.Use(httpkit.RequestLogger(log))
	router.Use(httpkit.SecurityHeaders())
	router.Use(corsMiddleware(cfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/bookings/events", handler.HandleBookingEvent)

		tasks := v1.Group("/tasks")
		tasks.GET("/:id", handler.HandleGetTask)
		tasks.POST("/:id/dispatch", handler.HandleDispatchTask)
		tasks.POST("/:id/accept", handler.HandleAcceptTask)
		tasks.POST("/:id/checkin", handler.HandleCheckInTask)
		tasks.POST("/:id/complete", handler.HandleCompleteTask)

		v1.POST("/emergency-requests", handler.HandleEmergencyRequest)
	}

	return router
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Tenant-ID", "X-Request-ID")
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
	} else if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cors.New(corsCfg)
}

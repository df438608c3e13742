package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"yenko/internal/config"
	"yenko/internal/controllers"
	"yenko/internal/logger"
	"yenko/internal/middleware"
)

// SetupRouter builds the engine with every API group mounted under /api.
func SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(logger.RequestLogger())
	r.Use(middleware.CORS(config.Current.CORSOrigins))

	if err := controllers.RegisterValidators(); err != nil {
		logrus.WithError(err).Error("Failed to register custom validators")
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	AuthRoutes(api)
	PassengerRoutes(api)
	DriverRoutes(api)
	PaymentRoutes(api)
	MatchingRoutes(api)
	AdminRoutes(api)
	WaitlistRoutes(api)
	WebSocketRoutes(api)

	return r
}

package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
	"yenko/internal/models"
)

func PassengerRoutes(r *gin.RouterGroup) {
	passenger := r.Group("/passenger")
	passenger.Use(middleware.RequireAuth(), middleware.RequireRole(models.RolePassenger))
	{
		passenger.GET("/profile", controllers.GetPassengerProfile)
		passenger.PUT("/profile", controllers.UpdatePassengerProfile)

		passenger.POST("/rides", controllers.RequestRide)
		passenger.GET("/rides", controllers.ListPassengerRides)
		passenger.GET("/rides/:id", controllers.GetPassengerRide)
		passenger.POST("/rides/:id/cancel", controllers.CancelRide)
		passenger.POST("/rides/:id/rate", controllers.RatePassengerRide)
	}
}

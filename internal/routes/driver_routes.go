package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
	"yenko/internal/models"
)

func DriverRoutes(r *gin.RouterGroup) {
	driver := r.Group("/driver")
	driver.Use(middleware.RequireAuth(), middleware.RequireRole(models.RoleDriver))
	{
		driver.GET("/profile", controllers.GetDriverProfile)
		driver.PUT("/profile", controllers.UpdateDriverProfile)
		driver.PUT("/availability", controllers.SetAvailability)
		driver.GET("/earnings", controllers.Earnings)

		driver.POST("/routes", controllers.CreateDriverRoute)
		driver.GET("/routes", controllers.ListDriverRoutes)
		driver.DELETE("/routes/:id", controllers.DeleteDriverRoute)

		driver.GET("/rides/pending", controllers.PendingRides)
		driver.GET("/rides", controllers.ListDriverRides)
		driver.POST("/rides/:id/accept", controllers.AcceptRide)
		driver.PUT("/rides/:id/status", controllers.UpdateRideStatus)
		driver.POST("/rides/:id/rate", controllers.RateDriverRide)
	}
}

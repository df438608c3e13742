package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
	"yenko/internal/models"
)

func AdminRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuth(), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/stats", controllers.AdminStats)
		admin.GET("/users", controllers.ListUsers)
		admin.GET("/drivers", controllers.ListDrivers)
		admin.PUT("/drivers/:id/verify", controllers.VerifyDriver)
		admin.GET("/rides", controllers.ListAllRides)
		admin.GET("/waitlist", controllers.ListWaitlist)
	}
}

package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
)

func MatchingRoutes(r *gin.RouterGroup) {
	matching := r.Group("/matching")
	{
		matching.POST("/estimate", controllers.EstimateFare)
		matching.POST("/find", middleware.RequireAuth(), controllers.FindMatches)
	}
}

package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
)

func WebSocketRoutes(r *gin.RouterGroup) {
	wsRoutes := r.Group("/ws")
	{
		// token travels in the query string; browsers cannot set headers on upgrade
		wsRoutes.GET("/rides", controllers.HandleRideWebSocket)
	}
}

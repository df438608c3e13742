package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
)

func WaitlistRoutes(r *gin.RouterGroup) {
	waitlist := r.Group("/waitlist")
	{
		waitlist.POST("", controllers.JoinWaitlist)
		waitlist.GET("/count", controllers.WaitlistCount)
	}
}

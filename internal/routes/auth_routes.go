package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
)

func AuthRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/otp/send", controllers.SendOTP)
		auth.POST("/otp/verify", controllers.VerifyOTP)
		auth.POST("/refresh", controllers.RefreshToken)
		auth.GET("/me", middleware.RequireAuth(), controllers.Me)
	}
}

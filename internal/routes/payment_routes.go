package routes

import (
	"github.com/gin-gonic/gin"

	"yenko/internal/controllers"
	"yenko/internal/middleware"
	"yenko/internal/models"
)

func PaymentRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		// provider callback, authenticated by shared secret
		payments.POST("/webhook", controllers.PaymentWebhook)

		authed := payments.Group("")
		authed.Use(middleware.RequireAuth())
		authed.POST("/initiate", middleware.RequireRole(models.RolePassenger), controllers.InitiatePayment)
		authed.GET("/ride/:ride_id", controllers.ListRidePayments)
		authed.GET("/:id", controllers.GetPayment)
	}
}

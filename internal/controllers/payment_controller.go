package controllers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"yenko/internal/config"
	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/pricing"
	"yenko/internal/response"
)

// checkoutBaseURL is where the stub provider would take the passenger to pay.
const checkoutBaseURL = "https://pay.yenko.africa/checkout/"

// InitiatePayment creates the payment for one of the passenger's rides.
// Cash is settled immediately; other methods wait for the provider webhook.
func InitiatePayment(c *gin.Context) {
	var input struct {
		RideID uint   `json:"ride_id" binding:"required"`
		Method string `json:"method" binding:"required,payment_method"`
	}
	if !bind(c, &input) {
		return
	}

	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	var payment models.Payment
	err = db(c).Transaction(func(tx *gorm.DB) error {
		var ride models.Ride
		// the row lock serialises initiates for the same ride
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND passenger_id = ?", input.RideID, passenger.ID).First(&ride).Error; err != nil {
			return err
		}
		if ride.Status == models.RideCancelled {
			return fmt.Errorf("ride %d was cancelled: %w", ride.ID, response.ErrInvalidTransition)
		}
		if ride.DriverID == nil {
			return fmt.Errorf("ride %d has no driver yet: %w", ride.ID, response.ErrInvalidTransition)
		}

		var active int64
		if err := tx.Model(&models.Payment{}).
			Where("ride_id = ? AND status IN ?", ride.ID, []string{models.PaymentPending, models.PaymentCompleted}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("ride %d already has a payment: %w", ride.ID, response.ErrConflict)
		}

		driverAmount, platformFee := pricing.SplitRevenue(ride.Fare)
		payment = models.Payment{
			RideID:       ride.ID,
			PassengerID:  passenger.ID,
			DriverID:     *ride.DriverID,
			Amount:       ride.Fare,
			DriverAmount: driverAmount,
			PlatformFee:  platformFee,
			Currency:     pricing.Currency,
			Method:       input.Method,
			Status:       models.PaymentPending,
			Reference:    "YNK-" + uuid.NewString(),
		}
		if input.Method == models.MethodCash {
			now := time.Now()
			payment.Status = models.PaymentCompleted
			payment.PaidAt = &now
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithFields(map[string]interface{}{
		"payment_id": payment.ID,
		"ride_id":    payment.RideID,
		"method":     payment.Method,
	}).Info("InitiatePayment: payment created")

	data := gin.H{"payment": payment}
	if payment.Status == models.PaymentPending {
		data["checkout_url"] = checkoutBaseURL + payment.Reference
	}
	response.OK(c, http.StatusCreated, "Payment initiated", data)
}

// PaymentWebhook receives provider callbacks. Only pending payments can change.
func PaymentWebhook(c *gin.Context) {
	secret := config.Current.PaymentWebhookSecret
	given := c.GetHeader("X-Webhook-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(given)) != 1 {
		response.Fail(c, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid webhook signature")
		return
	}

	var input struct {
		Reference         string `json:"reference" binding:"required"`
		Status            string `json:"status" binding:"required,oneof=completed failed"`
		ProviderReference string `json:"provider_reference" binding:"max=128"`
	}
	if !bind(c, &input) {
		return
	}

	var payment models.Payment
	if err := db(c).Where("reference = ?", input.Reference).First(&payment).Error; err != nil {
		response.FromError(c, err)
		return
	}
	if payment.Status == input.Status {
		// providers retry; a repeated callback is not an error
		response.OK(c, http.StatusOK, "Already processed", gin.H{"payment": payment})
		return
	}
	if payment.Status != models.PaymentPending {
		response.Fail(c, http.StatusConflict, response.CodeConflict, "Payment is already settled")
		return
	}

	updates := map[string]interface{}{
		"status":             input.Status,
		"provider_reference": input.ProviderReference,
	}
	if input.Status == models.PaymentCompleted {
		updates["paid_at"] = time.Now()
	}
	res := db(c).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		response.FromError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		response.Fail(c, http.StatusConflict, response.CodeConflict, "Payment is already settled")
		return
	}
	if err := db(c).First(&payment, payment.ID).Error; err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithFields(map[string]interface{}{
		"payment_id": payment.ID,
		"status":     payment.Status,
	}).Info("PaymentWebhook: payment settled")
	response.OK(c, http.StatusOK, "Payment updated", gin.H{"payment": payment})
}

// GetPayment returns a payment to its passenger, its driver or an admin.
func GetPayment(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var payment models.Payment
	if err := db(c).First(&payment, id).Error; err != nil {
		response.FromError(c, err)
		return
	}
	if err := authorizePaymentAccess(c, payment.PassengerID, payment.DriverID); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"payment": payment})
}

// ListRidePayments returns every payment attempt for a ride.
func ListRidePayments(c *gin.Context) {
	rideID, err := paramID(c, "ride_id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var ride models.Ride
	if err := db(c).First(&ride, rideID).Error; err != nil {
		response.FromError(c, err)
		return
	}
	var driverID uint
	if ride.DriverID != nil {
		driverID = *ride.DriverID
	}
	if err := authorizePaymentAccess(c, ride.PassengerID, driverID); err != nil {
		response.FromError(c, err)
		return
	}

	var payments []models.Payment
	if err := db(c).Where("ride_id = ?", ride.ID).Order("created_at desc").Find(&payments).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"payments": payments})
}

// authorizePaymentAccess allows admins and the two ride participants.
func authorizePaymentAccess(c *gin.Context, passengerID, driverID uint) error {
	switch middleware.CurrentRole(c) {
	case models.RoleAdmin:
		return nil
	case models.RolePassenger:
		p, err := currentPassenger(c)
		if err != nil {
			return err
		}
		if p.ID == passengerID {
			return nil
		}
	case models.RoleDriver:
		d, err := currentDriver(c)
		if err != nil {
			return err
		}
		if d.ID == driverID {
			return nil
		}
	}
	return fmt.Errorf("payment belongs to another account: %w", response.ErrForbidden)
}

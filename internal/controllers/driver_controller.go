package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/pricing"
	"yenko/internal/response"
)

// updateDriverInput defines the fields a client can send to update a driver's profile.
// Fields that belong to the User model are updated on the associated User.
type updateDriverInput struct {
	Name          *string `json:"name" binding:"omitempty,max=120"`
	Email         *string `json:"email" binding:"omitempty,email"`
	LicenseNumber *string `json:"license_number" binding:"omitempty,max=64"`
	VehicleMake   *string `json:"vehicle_make" binding:"omitempty,max=64"`
	VehicleModel  *string `json:"vehicle_model" binding:"omitempty,max=64"`
	VehiclePlate  *string `json:"vehicle_plate" binding:"omitempty,max=32"`
	VehicleColor  *string `json:"vehicle_color" binding:"omitempty,max=32"`
	Seats         *int    `json:"seats" binding:"omitempty,min=1,max=8"`
}

// GetDriverProfile returns the driver with their user record.
func GetDriverProfile(c *gin.Context) {
	var user models.User
	if err := db(c).Preload("Driver").First(&user, middleware.CurrentUserID(c)).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"driver_profile": prepareUserResponse(user)})
}

// UpdateDriverProfile allows modifying driver details (both user-level and driver-specific).
func UpdateDriverProfile(c *gin.Context) {
	var input updateDriverInput
	if !bind(c, &input) {
		return
	}
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	userUpdates := map[string]interface{}{}
	if input.Name != nil {
		userUpdates["name"] = *input.Name
	}
	if input.Email != nil {
		userUpdates["email"] = *input.Email
	}

	driverUpdates := map[string]interface{}{}
	set := func(col string, v *string) {
		if v != nil {
			driverUpdates[col] = *v
		}
	}
	set("license_number", input.LicenseNumber)
	set("vehicle_make", input.VehicleMake)
	set("vehicle_model", input.VehicleModel)
	set("vehicle_plate", input.VehiclePlate)
	set("vehicle_color", input.VehicleColor)
	if input.Seats != nil {
		driverUpdates["seats"] = *input.Seats
	}
	// A new license or plate has to be checked again.
	if input.LicenseNumber != nil || input.VehiclePlate != nil {
		driverUpdates["is_verified"] = false
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if len(userUpdates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", driver.UserID).Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		if len(driverUpdates) > 0 {
			return tx.Model(driver).Updates(driverUpdates).Error
		}
		return nil
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	var user models.User
	if err := db(c).Preload("Driver").First(&user, driver.UserID).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Driver details updated successfully.", gin.H{"driver_profile": prepareUserResponse(user)})
}

// SetAvailability toggles whether the driver takes requests and records their position.
func SetAvailability(c *gin.Context) {
	var input struct {
		IsOnline *bool    `json:"is_online" binding:"required"`
		Lat      *float64 `json:"lat" binding:"omitempty,latitude"`
		Lng      *float64 `json:"lng" binding:"omitempty,longitude"`
	}
	if !bind(c, &input) {
		return
	}
	if (input.Lat == nil) != (input.Lng == nil) {
		response.BadRequest(c, "lat and lng must be sent together")
		return
	}

	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	updates := map[string]interface{}{"is_online": *input.IsOnline}
	if input.Lat != nil {
		updates["current_lat"] = *input.Lat
		updates["current_lng"] = *input.Lng
	}
	if err := db(c).Model(driver).Updates(updates).Error; err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithField("is_online", *input.IsOnline).Info("SetAvailability: driver availability changed")
	response.OK(c, http.StatusOK, "Availability updated", gin.H{"driver": driver})
}

// Earnings summarises what the driver has been paid and what is still outstanding.
func Earnings(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	type sum struct {
		Total decimal.Decimal
		Count int64
	}
	var paid, pending sum
	if err := db(c).Model(&models.Payment{}).
		Select("COALESCE(SUM(driver_amount), 0) AS total, COUNT(*) AS count").
		Where("driver_id = ? AND status = ?", driver.ID, models.PaymentCompleted).
		Scan(&paid).Error; err != nil {
		response.FromError(c, err)
		return
	}
	if err := db(c).Model(&models.Payment{}).
		Select("COALESCE(SUM(driver_amount), 0) AS total, COUNT(*) AS count").
		Where("driver_id = ? AND status = ?", driver.ID, models.PaymentPending).
		Scan(&pending).Error; err != nil {
		response.FromError(c, err)
		return
	}

	var completedRides int64
	if err := db(c).Model(&models.Ride{}).
		Where("driver_id = ? AND status = ?", driver.ID, models.RideCompleted).
		Count(&completedRides).Error; err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, http.StatusOK, "", gin.H{
		"total_earned":    paid.Total.StringFixed(2),
		"paid_rides":      paid.Count,
		"pending_amount":  pending.Total.StringFixed(2),
		"pending_rides":   pending.Count,
		"completed_rides": completedRides,
		"currency":        pricing.Currency,
	})
}

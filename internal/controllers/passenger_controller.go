package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/response"
)

type updatePassengerInput struct {
	Name             *string `json:"name" binding:"omitempty,max=120"`
	Email            *string `json:"email" binding:"omitempty,email"`
	HomeAddress      *string `json:"home_address" binding:"omitempty,max=255"`
	WorkAddress      *string `json:"work_address" binding:"omitempty,max=255"`
	EmergencyContact *string `json:"emergency_contact" binding:"omitempty,e164"`
}

// GetPassengerProfile returns the passenger with their user record.
func GetPassengerProfile(c *gin.Context) {
	var user models.User
	if err := db(c).Preload("Passenger").First(&user, middleware.CurrentUserID(c)).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"profile": prepareUserResponse(user)})
}

// UpdatePassengerProfile updates user-level and passenger-level fields in one transaction.
func UpdatePassengerProfile(c *gin.Context) {
	var input updatePassengerInput
	if !bind(c, &input) {
		return
	}
	passenger, err := currentPassenger(c)
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
	profileUpdates := map[string]interface{}{}
	if input.HomeAddress != nil {
		profileUpdates["home_address"] = *input.HomeAddress
	}
	if input.WorkAddress != nil {
		profileUpdates["work_address"] = *input.WorkAddress
	}
	if input.EmergencyContact != nil {
		profileUpdates["emergency_contact"] = *input.EmergencyContact
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if len(userUpdates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", passenger.UserID).Updates(userUpdates).Error; err != nil {
				return err
			}
		}
		if len(profileUpdates) > 0 {
			return tx.Model(passenger).Updates(profileUpdates).Error
		}
		return nil
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	var user models.User
	if err := db(c).Preload("Passenger").First(&user, passenger.UserID).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Profile updated", gin.H{"profile": prepareUserResponse(user)})
}

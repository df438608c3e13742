package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/response"
)

// JoinWaitlist records a pre-launch signup. Each email may sign up once.
func JoinWaitlist(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email,max=254"`
		Phone    string `json:"phone" binding:"omitempty,e164"`
		Name     string `json:"name" binding:"max=120"`
		Role     string `json:"role" binding:"omitempty,oneof=passenger driver"`
		City     string `json:"city" binding:"max=80"`
		Referral string `json:"referral" binding:"max=80"`
	}
	if !bind(c, &input) {
		return
	}
	if input.Role == "" {
		input.Role = models.RolePassenger
	}

	entry := models.WaitlistEntry{
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:    input.Phone,
		Name:     strings.TrimSpace(input.Name),
		Role:     input.Role,
		City:     strings.TrimSpace(input.City),
		Referral: strings.TrimSpace(input.Referral),
	}
	if err := db(c).Create(&entry).Error; err != nil {
		if response.IsUniqueViolation(err) {
			response.Fail(c, http.StatusConflict, response.CodeConflict, "This email is already on the waitlist")
			return
		}
		response.FromError(c, err)
		return
	}

	var position int64
	if err := db(c).Model(&models.WaitlistEntry{}).Where("id <= ?", entry.ID).Count(&position).Error; err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithField("role", entry.Role).Info("JoinWaitlist: new signup")
	response.OK(c, http.StatusCreated, "You're on the list!", gin.H{"entry": entry, "position": position})
}

// WaitlistCount returns how many people have signed up.
func WaitlistCount(c *gin.Context) {
	var count int64
	if err := db(c).Model(&models.WaitlistEntry{}).Count(&count).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"count": count})
}

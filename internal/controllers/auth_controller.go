package controllers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"yenko/internal/config"
	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/notify"
	"yenko/internal/response"
)

// OTPSender delivers login codes. Replaced in tests and when an SMS provider is wired.
var OTPSender notify.Sender = notify.LogSender{}

type sendOTPInput struct {
	Phone string `json:"phone" binding:"required,e164"`
}

type verifyOTPInput struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
	Role  string `json:"role" binding:"omitempty,oneof=passenger driver"`
	Name  string `json:"name" binding:"max=120"`
}

// SendOTP issues a fresh login code for a phone number.
func SendOTP(c *gin.Context) {
	var input sendOTPInput
	if !bind(c, &input) {
		return
	}

	code, err := generateCode()
	if err != nil {
		response.FromError(c, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		response.FromError(c, fmt.Errorf("hash otp: %w", err))
		return
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		// Only the newest code is ever valid.
		if err := tx.Model(&models.OTPCode{}).
			Where("phone = ? AND consumed = ?", input.Phone, false).
			Update("consumed", true).Error; err != nil {
			return err
		}
		return tx.Create(&models.OTPCode{
			Phone:     input.Phone,
			CodeHash:  string(hash),
			ExpiresAt: time.Now().Add(config.Current.OTPTTL),
		}).Error
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	if err := OTPSender.SendOTP(c.Request.Context(), input.Phone, code); err != nil {
		middleware.Log(c).WithError(err).Error("SendOTP: delivery failed")
		response.Fail(c, http.StatusBadGateway, response.CodeInternal, "could not deliver verification code")
		return
	}

	response.OK(c, http.StatusOK, "Verification code sent", gin.H{
		"expires_in": int(config.Current.OTPTTL.Seconds()),
	})
}

// VerifyOTP checks a login code and signs the user in, creating the account on first use.
func VerifyOTP(c *gin.Context) {
	var input verifyOTPInput
	if !bind(c, &input) {
		return
	}

	if err := checkOTP(c, input.Phone, input.Code); err != nil {
		middleware.Log(c).WithError(err).Warn("VerifyOTP: rejected")
		response.FromError(c, err)
		return
	}

	user, created, err := findOrCreateUser(c, input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	tokens, err := middleware.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		response.FromError(c, fmt.Errorf("generate token: %w", err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.OK(c, status, "Signed in", gin.H{
		"tokens":      tokens,
		"user":        prepareUserResponse(user),
		"is_new_user": created,
	})
}

// RefreshToken exchanges a refresh token for a new token pair.
func RefreshToken(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bind(c, &body) {
		return
	}

	claims, err := middleware.ValidateToken(body.RefreshToken, middleware.RefreshToken)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid or expired refresh token")
		return
	}

	var user models.User
	if err := db(c).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Fail(c, http.StatusUnauthorized, response.CodeUnauthorized, "Account no longer exists")
			return
		}
		response.FromError(c, err)
		return
	}

	tokens, err := middleware.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		response.FromError(c, fmt.Errorf("generate token: %w", err))
		return
	}
	response.OK(c, http.StatusOK, "Token refreshed", gin.H{"tokens": tokens})
}

// Me returns the authenticated user with their actor profile.
func Me(c *gin.Context) {
	var user models.User
	if err := db(c).Preload("Driver").Preload("Passenger").
		First(&user, middleware.CurrentUserID(c)).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"user": prepareUserResponse(user)})
}

// checkOTP validates code against the newest unconsumed code for phone and consumes it.
// An attempt is taken with a guarded update before the hash is compared, and only
// the caller that flips consumed succeeds.
func checkOTP(c *gin.Context, phone, code string) error {
	var otp models.OTPCode
	err := db(c).Where("phone = ? AND consumed = ?", phone, false).Order("id desc").First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return response.ErrOTPInvalid
	} else if err != nil {
		return err
	}

	if time.Now().After(otp.ExpiresAt) {
		return response.ErrOTPExpired
	}

	res := db(c).Model(&models.OTPCode{}).
		Where("id = ? AND consumed = ? AND attempts < ?", otp.ID, false, config.Current.OTPMaxAttempts).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if err := db(c).First(&otp, otp.ID).Error; err != nil {
			return err
		}
		if otp.Consumed {
			return response.ErrOTPInvalid
		}
		return response.ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		return response.ErrOTPInvalid
	}

	res = db(c).Model(&models.OTPCode{}).
		Where("id = ? AND consumed = ?", otp.ID, false).
		Update("consumed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return response.ErrOTPInvalid
	}
	return nil
}

func findOrCreateUser(c *gin.Context, input verifyOTPInput) (models.User, bool, error) {
	var user models.User
	err := db(c).Where("phone = ?", input.Phone).First(&user).Error
	switch {
	case err == nil:
		now := time.Now()
		if err := db(c).Model(&user).Updates(map[string]interface{}{
			"last_login_at": now,
			"is_verified":   true,
		}).Error; err != nil {
			return user, false, err
		}
		err = db(c).Preload("Driver").Preload("Passenger").First(&user, user.ID).Error
		return user, false, err
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return user, false, err
	}

	role := resolveRole(input.Phone, input.Role)
	err = db(c).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		user = models.User{
			Phone:       input.Phone,
			Name:        strings.TrimSpace(input.Name),
			Role:        role,
			IsVerified:  true,
			LastLoginAt: &now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return createActorRecord(tx, &user)
	})
	if err != nil {
		return user, false, err
	}

	middleware.Log(c).WithFields(map[string]interface{}{
		"new_user_id": user.ID,
		"role":        user.Role,
	}).Info("VerifyOTP: account created")
	return user, true, nil
}

// resolveRole picks the role for a new account. Admins are configured, never requested.
func resolveRole(phone, requested string) string {
	if config.Current.IsAdminPhone(phone) {
		return models.RoleAdmin
	}
	role := strings.ToLower(strings.TrimSpace(requested))
	if role == "" {
		role = models.RolePassenger
	}
	return role
}

func createActorRecord(tx *gorm.DB, user *models.User) error {
	switch user.Role {
	case models.RolePassenger:
		passenger := models.Passenger{UserID: user.ID}
		if err := tx.Create(&passenger).Error; err != nil {
			return err
		}
		user.Passenger = &passenger
	case models.RoleDriver:
		driver := models.Driver{UserID: user.ID, Seats: 4}
		if err := tx.Create(&driver).Error; err != nil {
			return err
		}
		user.Driver = &driver
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func prepareUserResponse(user models.User) gin.H {
	responseUser := gin.H{
		"ID":            user.ID,
		"CreatedAt":     user.CreatedAt,
		"UpdatedAt":     user.UpdatedAt,
		"name":          user.Name,
		"email":         user.Email,
		"phone":         user.Phone,
		"role":          user.Role,
		"is_verified":   user.IsVerified,
		"last_login_at": user.LastLoginAt,
	}
	if user.Passenger != nil {
		responseUser["passenger"] = user.Passenger
		responseUser["passenger_id"] = user.Passenger.ID
	}
	if user.Driver != nil {
		responseUser["driver"] = user.Driver
		responseUser["driver_id"] = user.Driver.ID
	}
	return responseUser
}

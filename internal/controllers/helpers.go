package controllers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"yenko/internal/config"
	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/response"
)

// RegisterValidators adds the domain binding tags used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected validator engine")
	}
	if err := v.RegisterValidation("ride_status", func(fl validator.FieldLevel) bool {
		return models.RideStatus(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return models.ValidPaymentMethod(fl.Field().String())
	})
}

// db returns the shared handle bound to the request context.
func db(c *gin.Context) *gorm.DB {
	return config.DB.WithContext(c.Request.Context())
}

// paramID parses a positive numeric path parameter.
func paramID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

// bind decodes the JSON body into dst and writes a 400 on failure.
func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.BadRequest(c, "Invalid input: "+err.Error())
		return false
	}
	return true
}

// currentDriver loads the Driver profile of the authenticated user.
func currentDriver(c *gin.Context) (*models.Driver, error) {
	var driver models.Driver
	if err := db(c).Where("user_id = ?", middleware.CurrentUserID(c)).First(&driver).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("driver profile: %w", response.ErrNotFound)
		}
		return nil, err
	}
	return &driver, nil
}

// currentPassenger loads the Passenger profile of the authenticated user.
func currentPassenger(c *gin.Context) (*models.Passenger, error) {
	var passenger models.Passenger
	if err := db(c).Where("user_id = ?", middleware.CurrentUserID(c)).First(&passenger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("passenger profile: %w", response.ErrNotFound)
		}
		return nil, err
	}
	return &passenger, nil
}

// pageParams reads page/page_size query values with sane bounds.
func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

// paged wraps a list with pagination metadata.
func paged(items interface{}, total int64, page, size int) gin.H {
	return gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": size,
	}
}

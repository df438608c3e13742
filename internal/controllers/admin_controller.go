package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/pricing"
	"yenko/internal/response"
)

// AdminStats summarises users, rides, revenue and the waitlist.
func AdminStats(c *gin.Context) {
	counts := map[string]int64{}
	for key, q := range map[string]interface{}{
		"users":      &models.User{},
		"drivers":    &models.Driver{},
		"passengers": &models.Passenger{},
		"rides":      &models.Ride{},
		"waitlist":   &models.WaitlistEntry{},
	} {
		var n int64
		if err := db(c).Model(q).Count(&n).Error; err != nil {
			response.FromError(c, err)
			return
		}
		counts[key] = n
	}

	var verified int64
	if err := db(c).Model(&models.Driver{}).Where("is_verified = ?", true).Count(&verified).Error; err != nil {
		response.FromError(c, err)
		return
	}
	counts["verified_drivers"] = verified

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db(c).Model(&models.Ride{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error; err != nil {
		response.FromError(c, err)
		return
	}
	rides := map[string]int64{}
	for _, s := range byStatus {
		rides[s.Status] = s.Count
	}

	var revenue struct {
		Gross    decimal.Decimal
		Platform decimal.Decimal
		Drivers  decimal.Decimal
	}
	if err := db(c).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) AS gross, COALESCE(SUM(platform_fee), 0) AS platform, COALESCE(SUM(driver_amount), 0) AS drivers").
		Where("status = ?", models.PaymentCompleted).
		Scan(&revenue).Error; err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, http.StatusOK, "", gin.H{
		"counts":          counts,
		"rides_by_status": rides,
		"revenue": gin.H{
			"gross":         revenue.Gross.StringFixed(2),
			"platform_fees": revenue.Platform.StringFixed(2),
			"driver_payout": revenue.Drivers.StringFixed(2),
			"currency":      pricing.Currency,
		},
	})
}

// ListUsers pages through all users; ?role= filters.
func ListUsers(c *gin.Context) {
	q := db(c).Model(&models.User{})
	if role := c.Query("role"); role != "" {
		if !models.ValidRole(role) {
			response.BadRequest(c, "Unknown role")
			return
		}
		q = q.Where("role = ?", role)
	}
	page, size := pageParams(c)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		response.FromError(c, err)
		return
	}
	var users []models.User
	if err := q.Preload("Driver").Preload("Passenger").Order("id desc").
		Offset((page - 1) * size).Limit(size).Find(&users).Error; err != nil {
		response.FromError(c, err)
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, prepareUserResponse(u))
	}
	response.OK(c, http.StatusOK, "", paged(out, total, page, size))
}

// ListDrivers pages through driver profiles; ?verified=true|false filters.
func ListDrivers(c *gin.Context) {
	q := db(c).Model(&models.Driver{})
	switch c.Query("verified") {
	case "true":
		q = q.Where("is_verified = ?", true)
	case "false":
		q = q.Where("is_verified = ?", false)
	}
	page, size := pageParams(c)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		response.FromError(c, err)
		return
	}
	var drivers []models.Driver
	if err := q.Order("id desc").Offset((page - 1) * size).Limit(size).Find(&drivers).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", paged(drivers, total, page, size))
}

// ListAllRides pages through every ride; ?status= filters.
func ListAllRides(c *gin.Context) {
	listRides(c, db(c))
}

// ListWaitlist pages through waitlist signups, oldest first.
func ListWaitlist(c *gin.Context) {
	page, size := pageParams(c)
	var total int64
	if err := db(c).Model(&models.WaitlistEntry{}).Count(&total).Error; err != nil {
		response.FromError(c, err)
		return
	}
	var entries []models.WaitlistEntry
	if err := db(c).Order("id asc").Offset((page - 1) * size).Limit(size).Find(&entries).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", paged(entries, total, page, size))
}

// VerifyDriver marks a driver's documents as checked (or revokes it).
func VerifyDriver(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var input struct {
		Verified *bool `json:"verified" binding:"required"`
	}
	if !bind(c, &input) {
		return
	}

	var driver models.Driver
	if err := db(c).First(&driver, id).Error; err != nil {
		response.FromError(c, err)
		return
	}
	if err := db(c).Model(&driver).Update("is_verified", *input.Verified).Error; err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithFields(map[string]interface{}{
		"driver_id": driver.ID,
		"verified":  *input.Verified,
	}).Info("VerifyDriver: verification changed")
	response.OK(c, http.StatusOK, "Driver verification updated", gin.H{"driver": driver})
}

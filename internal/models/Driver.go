// internal/models/driver.go
package models

import (
	"gorm.io/gorm"
)

type Driver struct {
	gorm.Model
	UserID        uint    `json:"user_id" gorm:"uniqueIndex"` // Foreign key to User
	User          User    `gorm:"foreignKey:UserID" json:"-"`
	LicenseNumber string  `json:"license_number"`
	VehicleMake   string  `json:"vehicle_make"`
	VehicleModel  string  `json:"vehicle_model"`
	VehiclePlate  string  `json:"vehicle_plate"`
	VehicleColor  string  `json:"vehicle_color"`
	Seats         int     `json:"seats" gorm:"default:4"`
	IsVerified    bool    `json:"is_verified"` // set by an admin after document checks
	IsOnline      bool    `json:"is_online" gorm:"index"`
	CurrentLat    float64 `json:"current_lat"`
	CurrentLng    float64 `json:"current_lng"`
	Rating        float64 `json:"rating"`
	RatingCount   int     `json:"rating_count"`
}

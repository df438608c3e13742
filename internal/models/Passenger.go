package models

import "gorm.io/gorm"

type Passenger struct {
	gorm.Model
	UserID           uint    `json:"user_id" gorm:"uniqueIndex"`
	User             User    `gorm:"foreignKey:UserID" json:"-"`
	HomeAddress      string  `json:"home_address"`
	WorkAddress      string  `json:"work_address"`
	EmergencyContact string  `json:"emergency_contact"`
	Rating           float64 `json:"rating"`
	RatingCount      int     `json:"rating_count"`
}

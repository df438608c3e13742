package models

import (
	"time"

	"gorm.io/gorm"
)

// OTPCode stores a bcrypt hash of a one-time login code; the plain code never touches the DB.
type OTPCode struct {
	gorm.Model
	Phone     string `gorm:"index;not null"`
	CodeHash  string `gorm:"not null"`
	ExpiresAt time.Time
	Attempts  int
	Consumed  bool `gorm:"index"`
}

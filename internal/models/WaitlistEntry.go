package models

import "gorm.io/gorm"

type WaitlistEntry struct {
	gorm.Model
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Role     string `json:"role"` // "passenger" or "driver"
	City     string `json:"city"`
	Referral string `json:"referral"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleAdmin     = "admin"
)

type User struct {
	gorm.Model
	Phone       string     `json:"phone" gorm:"uniqueIndex;not null"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        string     `json:"role" gorm:"index"` // "passenger", "driver", "admin"
	IsVerified  bool       `json:"is_verified"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Actor-specific relations
	Driver    *Driver    `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"driver,omitempty"`
	Passenger *Passenger `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"passenger,omitempty"`
}

// ValidRole reports whether role is one of the known actor roles.
func ValidRole(role string) bool {
	switch role {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

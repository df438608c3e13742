package models

import (
	"time"

	"gorm.io/gorm"
)

// LocationHistory is a driver position recorded while a ride is in progress.
type LocationHistory struct {
	gorm.Model
	DriverID         uint      `json:"driver_id" gorm:"index"`
	RideID           uint      `json:"ride_id" gorm:"index"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Speed            float64   `json:"speed"`   // m/s as reported by the device
	Bearing          float64   `json:"bearing"` // degrees
	IsMoving         bool      `json:"is_moving"`
	DistanceFromLast float64   `json:"distance_from_last"` // meters
	Timestamp        time.Time `json:"timestamp"`
	EventType        string    `json:"event_type"` // "initial", "move", "stopped", "started", "periodic"
}

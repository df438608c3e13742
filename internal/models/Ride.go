package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RideStatus string

const (
	RidePending        RideStatus = "pending"
	RideDriverAssigned RideStatus = "driver_assigned"
	RideEnRoute        RideStatus = "en_route"
	RideArrived        RideStatus = "arrived"
	RideStarted        RideStatus = "started"
	RideCompleted      RideStatus = "completed"
	RideCancelled      RideStatus = "cancelled"
)

var rideTransitions = map[RideStatus][]RideStatus{
	RidePending:        {RideDriverAssigned, RideCancelled},
	RideDriverAssigned: {RideEnRoute, RideCancelled},
	RideEnRoute:        {RideArrived, RideCancelled},
	RideArrived:        {RideStarted, RideCancelled},
	RideStarted:        {RideCompleted},
}

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RidePending, RideDriverAssigned, RideEnRoute, RideArrived, RideStarted, RideCompleted, RideCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s RideStatus) IsTerminal() bool {
	return s == RideCompleted || s == RideCancelled
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, next := range rideTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Ride struct {
	gorm.Model
	PassengerID    uint            `json:"passenger_id" gorm:"index"`
	Passenger      Passenger       `gorm:"foreignKey:PassengerID" json:"-"`
	DriverID       *uint           `json:"driver_id,omitempty" gorm:"index"`
	Driver         *Driver         `gorm:"foreignKey:DriverID" json:"driver,omitempty"`
	DriverRouteID  *uint           `json:"driver_route_id,omitempty"`
	PickupAddress  string          `json:"pickup_address"`
	PickupLat      float64         `json:"pickup_lat"`
	PickupLng      float64         `json:"pickup_lng"`
	DropoffAddress string          `json:"dropoff_address"`
	DropoffLat     float64         `json:"dropoff_lat"`
	DropoffLng     float64         `json:"dropoff_lng"`
	DistanceKm     float64         `json:"distance_km"`
	Fare           decimal.Decimal `json:"fare" gorm:"type:decimal(12,2)"`
	Seats          int             `json:"seats" gorm:"default:1"`
	Status         RideStatus      `json:"status" gorm:"type:varchar(32);index"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	AcceptedAt     *time.Time      `json:"accepted_at,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy    string          `json:"cancelled_by,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
}

// Stamp records the time the ride entered status s.
func (r *Ride) Stamp(s RideStatus, at time.Time) {
	switch s {
	case RideDriverAssigned:
		r.AcceptedAt = &at
	case RideStarted:
		r.StartedAt = &at
	case RideCompleted:
		r.CompletedAt = &at
	case RideCancelled:
		r.CancelledAt = &at
	}
}

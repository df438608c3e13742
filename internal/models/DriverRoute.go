package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DriverRoute is a trip a driver has posted and is willing to share.
// Geometry holds the WKB encoding of a LINESTRING (SRID 4326); the API speaks GeoJSON.
type DriverRoute struct {
	gorm.Model
	DriverID           uint            `json:"driver_id" gorm:"index"`
	Driver             Driver          `gorm:"foreignKey:DriverID" json:"-"`
	OriginAddress      string          `json:"origin_address"`
	OriginLat          float64         `json:"origin_lat"`
	OriginLng          float64         `json:"origin_lng"`
	DestinationAddress string          `json:"destination_address"`
	DestinationLat     float64         `json:"destination_lat"`
	DestinationLng     float64         `json:"destination_lng"`
	Geometry           []byte          `gorm:"type:bytea" json:"-"`
	DepartureTime      time.Time       `json:"departure_time" gorm:"index"`
	AvailableSeats     int             `json:"available_seats"`
	PricePerSeat       decimal.Decimal `json:"price_per_seat" gorm:"type:decimal(12,2)"`
	IsActive           bool            `json:"is_active" gorm:"default:true;index"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

const (
	MethodCash        = "cash"
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"
)

type Payment struct {
	gorm.Model
	RideID            uint            `json:"ride_id" gorm:"index"`
	PassengerID       uint            `json:"passenger_id" gorm:"index"`
	DriverID          uint            `json:"driver_id" gorm:"index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(12,2)"`
	DriverAmount      decimal.Decimal `json:"driver_amount" gorm:"type:decimal(12,2)"`
	PlatformFee       decimal.Decimal `json:"platform_fee" gorm:"type:decimal(12,2)"`
	Currency          string          `json:"currency"`
	Method            string          `json:"method"`
	Status            string          `json:"status" gorm:"index"`
	Reference         string          `json:"reference" gorm:"uniqueIndex"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
}

// ValidPaymentMethod reports whether m is a supported payment method.
func ValidPaymentMethod(m string) bool {
	return m == MethodCash || m == MethodMobileMoney || m == MethodCard
}

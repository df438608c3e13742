// Package pricing computes fares and splits ride revenue between driver and platform.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"yenko/internal/geo"
)

// Currency all amounts are quoted in.
const Currency = "GHS"

// AverageSpeedKmh is used to estimate trip duration.
const AverageSpeedKmh = 30.0

var (
	BaseFare    = decimal.NewFromFloat(5.00)
	PerKmRate   = decimal.NewFromFloat(2.50)
	MinimumFare = decimal.NewFromFloat(8.00)

	// DriverShare is the fraction of every fare paid out to the driver.
	DriverShare = decimal.NewFromFloat(0.88)
	// PlatformShare is the platform's commission. It is DriverShare's complement.
	PlatformShare = decimal.NewFromFloat(0.12)
)

// Quote is a fare estimate for a trip.
type Quote struct {
	DistanceKm      float64         `json:"distance_km"`
	DurationMinutes int             `json:"duration_minutes"`
	Seats           int             `json:"seats"`
	FarePerSeat     decimal.Decimal `json:"fare_per_seat"`
	Total           decimal.Decimal `json:"total"`
	DriverAmount    decimal.Decimal `json:"driver_amount"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	Currency        string          `json:"currency"`
}

// CalculateFare is BaseFare + PerKmRate*distance, never below MinimumFare, rounded to 2dp.
func CalculateFare(distanceKm float64) decimal.Decimal {
	if distanceKm < 0 || math.IsNaN(distanceKm) {
		distanceKm = 0
	}
	fare := BaseFare.Add(PerKmRate.Mul(decimal.NewFromFloat(distanceKm)))
	if fare.LessThan(MinimumFare) {
		fare = MinimumFare
	}
	return fare.Round(2)
}

// SplitRevenue returns the driver's and the platform's share of amount.
// The driver part is rounded and the platform keeps the remainder, so the
// two parts always sum to amount.
func SplitRevenue(amount decimal.Decimal) (driver, platform decimal.Decimal) {
	driver = amount.Mul(DriverShare).Round(2)
	platform = amount.Sub(driver)
	return driver, platform
}

// EstimateDuration returns whole minutes at AverageSpeedKmh, at least one.
func EstimateDuration(distanceKm float64) int {
	m := int(math.Ceil(distanceKm / AverageSpeedKmh * 60))
	if m < 1 {
		m = 1
	}
	return m
}

// Estimate quotes a trip between two points for the given number of seats.
func Estimate(pickup, dropoff geo.Point, seats int) Quote {
	if seats < 1 {
		seats = 1
	}
	distance := geo.Haversine(pickup.Lat, pickup.Lng, dropoff.Lat, dropoff.Lng)
	perSeat := CalculateFare(distance)
	return quote(distance, perSeat, seats)
}

// FixedQuote quotes a trip at a driver-set per-seat price.
func FixedQuote(distanceKm float64, perSeat decimal.Decimal, seats int) Quote {
	if seats < 1 {
		seats = 1
	}
	return quote(distanceKm, perSeat.Round(2), seats)
}

func quote(distanceKm float64, perSeat decimal.Decimal, seats int) Quote {
	total := perSeat.Mul(decimal.NewFromInt(int64(seats)))
	driver, platform := SplitRevenue(total)
	return Quote{
		DistanceKm:      math.Round(distanceKm*100) / 100,
		DurationMinutes: EstimateDuration(distanceKm),
		Seats:           seats,
		FarePerSeat:     perSeat,
		Total:           total,
		DriverAmount:    driver,
		PlatformFee:     platform,
		Currency:        Currency,
	}
}

package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"yenko/internal/geo"
	"yenko/internal/matching"
	"yenko/internal/models"
	"yenko/internal/pricing"
	"yenko/internal/response"
)

// maxCandidateRoutes bounds how many open routes one search scores.
const maxCandidateRoutes = 500

type tripInput struct {
	Pickup        locationInput `json:"pickup"`
	Dropoff       locationInput `json:"dropoff"`
	DepartureTime *time.Time    `json:"departure_time"`
	Seats         int           `json:"seats" binding:"omitempty,min=1,max=8"`
}

// EstimateFare quotes a trip without booking it.
func EstimateFare(c *gin.Context) {
	var input tripInput
	if !bind(c, &input) {
		return
	}
	quote := pricing.Estimate(input.Pickup.point(), input.Dropoff.point(), input.Seats)
	response.OK(c, http.StatusOK, "", gin.H{"quote": quote})
}

// FindMatches ranks verified drivers' open routes against the passenger's trip.
func FindMatches(c *gin.Context) {
	var input tripInput
	if !bind(c, &input) {
		return
	}
	if input.Seats == 0 {
		input.Seats = 1
	}
	departure := time.Now()
	if input.DepartureTime != nil {
		departure = *input.DepartureTime
	}

	var routes []models.DriverRoute
	if err := db(c).
		Joins("JOIN drivers ON drivers.id = driver_routes.driver_id AND drivers.deleted_at IS NULL").
		Where("driver_routes.is_active = ? AND driver_routes.available_seats >= ? AND drivers.is_verified = ?", true, input.Seats, true).
		Where("driver_routes.departure_time BETWEEN ? AND ?",
			departure.Add(-matching.Window).UTC(), departure.Add(matching.Window).UTC()).
		Select("driver_routes.*").
		Preload("Driver.User").
		Order("driver_routes.departure_time asc").
		Limit(maxCandidateRoutes).
		Find(&routes).Error; err != nil {
		response.FromError(c, err)
		return
	}

	candidates := make([]matching.Candidate, 0, len(routes))
	for _, r := range routes {
		candidates = append(candidates, matching.Candidate{
			RouteID:        r.ID,
			DriverID:       r.DriverID,
			DriverName:     r.Driver.User.Name,
			Rating:         r.Driver.Rating,
			RatingCount:    r.Driver.RatingCount,
			Polyline:       geo.Polyline(r.Geometry, geo.Point{Lat: r.OriginLat, Lng: r.OriginLng}, geo.Point{Lat: r.DestinationLat, Lng: r.DestinationLng}),
			DepartureTime:  r.DepartureTime,
			AvailableSeats: r.AvailableSeats,
		})
	}

	req := matching.Request{
		Pickup:        input.Pickup.point(),
		Dropoff:       input.Dropoff.point(),
		DepartureTime: departure,
		Seats:         input.Seats,
	}
	matches := matching.Rank(req, candidates)

	response.OK(c, http.StatusOK, "", gin.H{
		"matches": matches,
		"quote":   pricing.Estimate(req.Pickup, req.Dropoff, req.Seats),
	})
}

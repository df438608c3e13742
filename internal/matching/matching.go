// Package matching ranks posted driver routes against a passenger's trip.
package matching

import (
	"math"
	"sort"
	"time"

	"yenko/internal/geo"
)

const (
	// MaxDetourKm is the furthest pickup or dropoff may be from a route's polyline.
	MaxDetourKm = 2.0
	// Window is how far a route's departure may be from the requested time.
	Window = 60 * time.Minute
	// MaxResults caps the ranked list.
	MaxResults = 10
	// DefaultRating stands in for drivers nobody has rated yet.
	DefaultRating = 4.0

	proximityWeight = 0.5
	timeWeight      = 0.3
	ratingWeight    = 0.2
)

// Request is the passenger side of a match.
type Request struct {
	Pickup        geo.Point
	Dropoff       geo.Point
	DepartureTime time.Time
	Seats         int
}

// Candidate is a posted route with the facts needed to score it.
type Candidate struct {
	RouteID        uint
	DriverID       uint
	DriverName     string
	Rating         float64
	RatingCount    int
	Polyline       []geo.Point
	DepartureTime  time.Time
	AvailableSeats int
}

// Match is a scored candidate.
type Match struct {
	RouteID         uint      `json:"route_id"`
	DriverID        uint      `json:"driver_id"`
	DriverName      string    `json:"driver_name"`
	Rating          float64   `json:"rating"`
	DepartureTime   time.Time `json:"departure_time"`
	AvailableSeats  int       `json:"available_seats"`
	PickupDistance  float64   `json:"pickup_distance_km"`
	DropoffDistance float64   `json:"dropoff_distance_km"`
	Score           float64   `json:"score"`
}

// Score returns the weighted score of c for req and whether c is eligible at all.
func Score(req Request, c Candidate) (Match, bool) {
	if c.AvailableSeats < max(req.Seats, 1) {
		return Match{}, false
	}

	pickupKm := geo.DistanceToPolylineKm(req.Pickup, c.Polyline)
	dropoffKm := geo.DistanceToPolylineKm(req.Dropoff, c.Polyline)
	if pickupKm > MaxDetourKm || dropoffKm > MaxDetourKm {
		return Match{}, false
	}

	gap := c.DepartureTime.Sub(req.DepartureTime)
	if gap < 0 {
		gap = -gap
	}
	if gap > Window {
		return Match{}, false
	}

	rating := c.Rating
	if c.RatingCount == 0 {
		rating = DefaultRating
	}

	proximity := 1 - (pickupKm+dropoffKm)/(2*MaxDetourKm)
	timeFit := 1 - gap.Seconds()/Window.Seconds()
	score := proximityWeight*proximity + timeWeight*timeFit + ratingWeight*(rating/5)

	return Match{
		RouteID:         c.RouteID,
		DriverID:        c.DriverID,
		DriverName:      c.DriverName,
		Rating:          rating,
		DepartureTime:   c.DepartureTime,
		AvailableSeats:  c.AvailableSeats,
		PickupDistance:  round(pickupKm, 3),
		DropoffDistance: round(dropoffKm, 3),
		Score:           round(score, 4),
	}, true
}

// Rank scores every candidate, drops ineligible ones and returns the best first.
func Rank(req Request, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if m, ok := Score(req, c); ok {
			matches = append(matches, m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].DepartureTime.Before(matches[j].DepartureTime)
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

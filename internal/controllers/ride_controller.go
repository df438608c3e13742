package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"yenko/internal/geo"
	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/pricing"
	"yenko/internal/response"
)

const defaultPendingRadiusKm = 10.0

// locationInput is a named point in a request body.
type locationInput struct {
	Address string   `json:"address" binding:"max=255"`
	Lat     *float64 `json:"lat" binding:"required,latitude"`
	Lng     *float64 `json:"lng" binding:"required,longitude"`
}

func (l locationInput) point() geo.Point {
	return geo.Point{Lat: *l.Lat, Lng: *l.Lng}
}

type requestRideInput struct {
	Pickup        locationInput `json:"pickup"`
	Dropoff       locationInput `json:"dropoff"`
	Seats         int           `json:"seats" binding:"omitempty,min=1,max=8"`
	ScheduledAt   *time.Time    `json:"scheduled_at"`
	DriverRouteID *uint         `json:"driver_route_id"`
}

type rateInput struct {
	Score   int    `json:"score" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=500"`
}

// RequestRide lets a passenger ask for a ride, optionally on a posted driver route.
func RequestRide(c *gin.Context) {
	var input requestRideInput
	if !bind(c, &input) {
		return
	}
	if input.Seats == 0 {
		input.Seats = 1
	}

	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pickup, dropoff := input.Pickup.point(), input.Dropoff.point()
	quote := pricing.Estimate(pickup, dropoff, input.Seats)

	if input.DriverRouteID != nil {
		var route models.DriverRoute
		if err := db(c).Where("id = ? AND is_active = ?", *input.DriverRouteID, true).First(&route).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.Fail(c, http.StatusNotFound, response.CodeNotFound, "Driver route not found or no longer active")
				return
			}
			response.FromError(c, err)
			return
		}
		if route.AvailableSeats < input.Seats {
			response.Fail(c, http.StatusConflict, response.CodeConflict, "Not enough seats left on this route")
			return
		}
		if route.PricePerSeat.IsPositive() {
			quote = pricing.FixedQuote(quote.DistanceKm, route.PricePerSeat, input.Seats)
		}
	}

	ride := models.Ride{
		PassengerID:    passenger.ID,
		DriverRouteID:  input.DriverRouteID,
		PickupAddress:  input.Pickup.Address,
		PickupLat:      pickup.Lat,
		PickupLng:      pickup.Lng,
		DropoffAddress: input.Dropoff.Address,
		DropoffLat:     dropoff.Lat,
		DropoffLng:     dropoff.Lng,
		DistanceKm:     quote.DistanceKm,
		Fare:           quote.Total,
		Seats:          input.Seats,
		Status:         models.RidePending,
		ScheduledAt:    input.ScheduledAt,
	}
	if err := db(c).Create(&ride).Error; err != nil {
		response.FromError(c, err)
		return
	}

	middleware.Log(c).WithFields(map[string]interface{}{
		"ride_id": ride.ID,
		"fare":    ride.Fare.String(),
		"km":      ride.DistanceKm,
	}).Info("RequestRide: ride created")
	response.OK(c, http.StatusCreated, "Ride requested", gin.H{"ride": ride, "quote": quote})
}

// ListPassengerRides returns the passenger's ride history, newest first.
func ListPassengerRides(c *gin.Context) {
	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	listRides(c, db(c).Where("passenger_id = ?", passenger.ID))
}

// GetPassengerRide returns one of the passenger's rides with the assigned driver.
func GetPassengerRide(c *gin.Context) {
	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride, err := loadRide(c, "passenger_id = ?", passenger.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{"ride": ride})
}

// CancelRide lets a passenger cancel a ride that has not started.
func CancelRide(c *gin.Context) {
	var input struct {
		Reason string `json:"reason" binding:"max=255"`
	}
	// the body is optional
	if c.Request.ContentLength > 0 && !bind(c, &input) {
		return
	}

	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride, err := loadRide(c, "passenger_id = ?", passenger.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	wasAssigned := ride.Status != models.RidePending
	err = db(c).Transaction(func(tx *gorm.DB) error {
		if err := transitionRide(tx, ride, models.RideCancelled, map[string]interface{}{
			"cancelled_by":  models.RolePassenger,
			"cancel_reason": input.Reason,
		}); err != nil {
			return err
		}
		if wasAssigned && ride.DriverRouteID != nil {
			return releaseSeats(tx, *ride.DriverRouteID, ride.Seats)
		}
		return nil
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	publishRideStatus(ride)
	response.OK(c, http.StatusOK, "Ride cancelled", gin.H{"ride": ride})
}

// RatePassengerRide lets the passenger rate the driver of a completed ride.
func RatePassengerRide(c *gin.Context) {
	var input rateInput
	if !bind(c, &input) {
		return
	}
	passenger, err := currentPassenger(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride, err := loadRide(c, "passenger_id = ?", passenger.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if ride.DriverID == nil {
		response.Fail(c, http.StatusConflict, response.CodeConflict, "Ride has no driver to rate")
		return
	}

	var rating models.Rating
	err = db(c).Transaction(func(tx *gorm.DB) error {
		var driver models.Driver
		if err := tx.First(&driver, *ride.DriverID).Error; err != nil {
			return err
		}
		rating, err = saveRating(tx, ride, passenger.UserID, driver.UserID, input)
		if err != nil {
			return err
		}
		avg, count := runningAverage(driver.Rating, driver.RatingCount, input.Score)
		return tx.Model(&driver).Updates(map[string]interface{}{"rating": avg, "rating_count": count}).Error
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Thanks for rating your driver", gin.H{"rating": rating})
}

// PendingRides lists unassigned rides near the driver, closest first.
func PendingRides(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	lat, lng := driver.CurrentLat, driver.CurrentLng
	if v, err := strconv.ParseFloat(c.Query("lat"), 64); err == nil {
		lat = v
	}
	if v, err := strconv.ParseFloat(c.Query("lng"), 64); err == nil {
		lng = v
	}
	radius := defaultPendingRadiusKm
	if v, err := strconv.ParseFloat(c.Query("radius_km"), 64); err == nil && v > 0 {
		radius = v
	}
	if !geo.ValidCoordinate(lat, lng) {
		response.BadRequest(c, "Invalid coordinates")
		return
	}

	var rides []models.Ride
	// rides booked on a route are only offered to that route's driver
	ownRoutes := db(c).Model(&models.DriverRoute{}).Select("id").Where("driver_id = ?", driver.ID)
	if err := db(c).Where("status = ? AND driver_id IS NULL", models.RidePending).
		Where("driver_route_id IS NULL OR driver_route_id IN (?)", ownRoutes).
		Order("created_at asc").Limit(200).Find(&rides).Error; err != nil {
		response.FromError(c, err)
		return
	}

	type nearbyRide struct {
		models.Ride
		PickupDistanceKm float64 `json:"pickup_distance_km"`
	}
	nearby := make([]nearbyRide, 0, len(rides))
	for _, r := range rides {
		d := geo.Haversine(lat, lng, r.PickupLat, r.PickupLng)
		if d <= radius {
			nearby = append(nearby, nearbyRide{Ride: r, PickupDistanceKm: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].PickupDistanceKm < nearby[j].PickupDistanceKm })

	response.OK(c, http.StatusOK, "", gin.H{"rides": nearby})
}

// ListDriverRides returns rides assigned to the driver.
func ListDriverRides(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	listRides(c, db(c).Where("driver_id = ?", driver.ID))
}

// AcceptRide assigns a pending ride to the calling driver. Only one driver can win.
func AcceptRide(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !driver.IsVerified {
		response.Fail(c, http.StatusForbidden, response.CodeForbidden, "Driver account is awaiting verification")
		return
	}

	ride, err := loadRide(c, "1 = 1")
	if err != nil {
		response.FromError(c, err)
		return
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if ride.DriverRouteID != nil {
			if err := reserveSeats(tx, *ride.DriverRouteID, driver.ID, ride.Seats); err != nil {
				return err
			}
		}
		return transitionRide(tx, ride, models.RideDriverAssigned, map[string]interface{}{"driver_id": driver.ID})
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride.DriverID = &driver.ID
	ride.Driver = driver

	middleware.Log(c).WithFields(map[string]interface{}{"ride_id": ride.ID, "driver_id": driver.ID}).Info("AcceptRide: ride assigned")
	publishRideStatus(ride)
	response.OK(c, http.StatusOK, "Ride accepted", gin.H{"ride": ride})
}

// UpdateRideStatus moves one of the driver's rides along its lifecycle.
func UpdateRideStatus(c *gin.Context) {
	var input struct {
		Status models.RideStatus `json:"status" binding:"required,ride_status"`
		Reason string            `json:"reason" binding:"max=255"`
	}
	if !bind(c, &input) {
		return
	}
	if input.Status == models.RidePending || input.Status == models.RideDriverAssigned {
		response.BadRequest(c, "Use the accept endpoint to take a ride")
		return
	}

	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride, err := loadRide(c, "driver_id = ?", driver.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	extra := map[string]interface{}{}
	if input.Status == models.RideCancelled {
		extra["cancelled_by"] = models.RoleDriver
		extra["cancel_reason"] = input.Reason
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		if err := transitionRide(tx, ride, input.Status, extra); err != nil {
			return err
		}
		if input.Status == models.RideCancelled && ride.DriverRouteID != nil {
			return releaseSeats(tx, *ride.DriverRouteID, ride.Seats)
		}
		return nil
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	publishRideStatus(ride)
	response.OK(c, http.StatusOK, "Ride status updated", gin.H{"ride": ride})
}

// RateDriverRide lets the driver rate the passenger of a completed ride.
func RateDriverRide(c *gin.Context) {
	var input rateInput
	if !bind(c, &input) {
		return
	}
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	ride, err := loadRide(c, "driver_id = ?", driver.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	var rating models.Rating
	err = db(c).Transaction(func(tx *gorm.DB) error {
		var passenger models.Passenger
		if err := tx.First(&passenger, ride.PassengerID).Error; err != nil {
			return err
		}
		rating, err = saveRating(tx, ride, driver.UserID, passenger.UserID, input)
		if err != nil {
			return err
		}
		avg, count := runningAverage(passenger.Rating, passenger.RatingCount, input.Score)
		return tx.Model(&passenger).Updates(map[string]interface{}{"rating": avg, "rating_count": count}).Error
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Passenger rated", gin.H{"rating": rating})
}

// loadRide fetches the ride named by the :id parameter, scoped by an extra condition.
func loadRide(c *gin.Context, scope string, args ...interface{}) (*models.Ride, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", response.ErrNotFound, err)
	}
	var ride models.Ride
	if err := db(c).Preload("Driver").Where(scope, args...).First(&ride, id).Error; err != nil {
		return nil, err
	}
	return &ride, nil
}

func listRides(c *gin.Context, q *gorm.DB) {
	if status := c.Query("status"); status != "" {
		if !models.RideStatus(status).Valid() {
			response.BadRequest(c, "Unknown ride status")
			return
		}
		q = q.Where("status = ?", status)
	}
	page, size := pageParams(c)

	var total int64
	if err := q.Model(&models.Ride{}).Count(&total).Error; err != nil {
		response.FromError(c, err)
		return
	}
	var rides []models.Ride
	if err := q.Preload("Driver").Order("created_at desc").
		Offset((page - 1) * size).Limit(size).Find(&rides).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "", paged(rides, total, page, size))
}

// transitionRide moves ride to status `to`, guarded on its current status so
// concurrent writers cannot both succeed.
func transitionRide(tx *gorm.DB, ride *models.Ride, to models.RideStatus, extra map[string]interface{}) error {
	if !models.CanTransition(ride.Status, to) {
		return fmt.Errorf("%s -> %s: %w", ride.Status, to, response.ErrInvalidTransition)
	}

	now := time.Now()
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.RideDriverAssigned:
		updates["accepted_at"] = now
	case models.RideStarted:
		updates["started_at"] = now
	case models.RideCompleted:
		updates["completed_at"] = now
	case models.RideCancelled:
		updates["cancelled_at"] = now
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&models.Ride{}).Where("id = ? AND status = ?", ride.ID, ride.Status).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ride %d changed concurrently: %w", ride.ID, response.ErrInvalidTransition)
	}

	ride.Status = to
	ride.Stamp(to, now)
	if by, ok := extra["cancelled_by"].(string); ok {
		ride.CancelledBy = by
	}
	if reason, ok := extra["cancel_reason"].(string); ok {
		ride.CancelReason = reason
	}
	return nil
}

// reserveSeats takes seats on a driver's own active route.
func reserveSeats(tx *gorm.DB, routeID, driverID uint, seats int) error {
	res := tx.Model(&models.DriverRoute{}).
		Where("id = ? AND driver_id = ? AND is_active = ? AND available_seats >= ?", routeID, driverID, true, seats).
		Update("available_seats", gorm.Expr("available_seats - ?", seats))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("route %d is not yours or is full: %w", routeID, response.ErrConflict)
	}
	return nil
}

func releaseSeats(tx *gorm.DB, routeID uint, seats int) error {
	return tx.Model(&models.DriverRoute{}).Where("id = ?", routeID).
		Update("available_seats", gorm.Expr("available_seats + ?", seats)).Error
}

func saveRating(tx *gorm.DB, ride *models.Ride, raterID, rateeID uint, input rateInput) (models.Rating, error) {
	if ride.Status != models.RideCompleted {
		return models.Rating{}, fmt.Errorf("only completed rides can be rated: %w", response.ErrInvalidTransition)
	}
	rating := models.Rating{
		RideID:  ride.ID,
		RaterID: raterID,
		RateeID: rateeID,
		Score:   input.Score,
		Comment: input.Comment,
	}
	if err := tx.Create(&rating).Error; err != nil {
		return rating, err
	}
	return rating, nil
}

// runningAverage folds score into an average over count ratings.
func runningAverage(avg float64, count, score int) (float64, int) {
	total := avg*float64(count) + float64(score)
	count++
	return total / float64(count), count
}

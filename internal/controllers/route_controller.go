package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yenko/internal/geo"
	"yenko/internal/models"
	"yenko/internal/response"
)

// RouteResponse mirrors models.DriverRoute with Geometry as GeoJSON for API output.
type RouteResponse struct {
	ID                 uint            `json:"ID"`
	CreatedAt          time.Time       `json:"CreatedAt"`
	UpdatedAt          time.Time       `json:"UpdatedAt"`
	DriverID           uint            `json:"driver_id"`
	OriginAddress      string          `json:"origin_address"`
	OriginLat          float64         `json:"origin_lat"`
	OriginLng          float64         `json:"origin_lng"`
	DestinationAddress string          `json:"destination_address"`
	DestinationLat     float64         `json:"destination_lat"`
	DestinationLng     float64         `json:"destination_lng"`
	Geometry           string          `json:"geometry,omitempty"`
	DepartureTime      time.Time       `json:"departure_time"`
	AvailableSeats     int             `json:"available_seats"`
	PricePerSeat       decimal.Decimal `json:"price_per_seat"`
	IsActive           bool            `json:"is_active"`
}

// toRouteResponse converts a models.DriverRoute to a RouteResponse
func toRouteResponse(route models.DriverRoute) RouteResponse {
	jsonGeom, err := geo.LineStringToGeoJSON(route.Geometry)
	if err != nil {
		logrus.WithError(err).WithField("route_id", route.ID).Warn("stored route geometry is unreadable")
	}
	return RouteResponse{
		ID:                 route.ID,
		CreatedAt:          route.CreatedAt,
		UpdatedAt:          route.UpdatedAt,
		DriverID:           route.DriverID,
		OriginAddress:      route.OriginAddress,
		OriginLat:          route.OriginLat,
		OriginLng:          route.OriginLng,
		DestinationAddress: route.DestinationAddress,
		DestinationLat:     route.DestinationLat,
		DestinationLng:     route.DestinationLng,
		Geometry:           jsonGeom,
		DepartureTime:      route.DepartureTime,
		AvailableSeats:     route.AvailableSeats,
		PricePerSeat:       route.PricePerSeat,
		IsActive:           route.IsActive,
	}
}

// CreateDriverRoute lets a driver post a trip with an optional GeoJSON LineString.
func CreateDriverRoute(c *gin.Context) {
	var input struct {
		Origin         locationInput    `json:"origin"`
		Destination    locationInput    `json:"destination"`
		Geometry       string           `json:"geometry"` // GeoJSON LineString
		DepartureTime  time.Time        `json:"departure_time" binding:"required"`
		AvailableSeats int              `json:"available_seats" binding:"required,min=1,max=8"`
		PricePerSeat   *decimal.Decimal `json:"price_per_seat"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		logrus.WithError(err).Warn("CreateDriverRoute: invalid input payload")
		response.BadRequest(c, "Invalid input: "+err.Error())
		return
	}
	if input.DepartureTime.Before(time.Now().Add(-5 * time.Minute)) {
		response.BadRequest(c, "departure_time must be in the future")
		return
	}
	if input.PricePerSeat != nil && input.PricePerSeat.IsNegative() {
		response.BadRequest(c, "price_per_seat cannot be negative")
		return
	}

	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if input.AvailableSeats > driver.Seats {
		response.BadRequest(c, "available_seats exceeds the seats registered for your vehicle")
		return
	}

	wkbGeom, err := geo.ParseLineString(input.Geometry)
	if err != nil {
		response.BadRequest(c, "Invalid geometry: "+err.Error())
		return
	}

	route := models.DriverRoute{
		DriverID:           driver.ID,
		OriginAddress:      input.Origin.Address,
		OriginLat:          *input.Origin.Lat,
		OriginLng:          *input.Origin.Lng,
		DestinationAddress: input.Destination.Address,
		DestinationLat:     *input.Destination.Lat,
		DestinationLng:     *input.Destination.Lng,
		Geometry:           wkbGeom,
		DepartureTime:      input.DepartureTime.UTC(),
		AvailableSeats:     input.AvailableSeats,
		IsActive:           true,
	}
	if input.PricePerSeat != nil {
		route.PricePerSeat = input.PricePerSeat.Round(2)
	}

	if err := db(c).Create(&route).Error; err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Route posted", gin.H{"route": toRouteResponse(route)})
}

// ListDriverRoutes returns the driver's routes; ?active=true keeps only open ones.
func ListDriverRoutes(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	q := db(c).Where("driver_id = ?", driver.ID)
	if c.Query("active") == "true" {
		q = q.Where("is_active = ?", true)
	}
	var routes []models.DriverRoute
	if err := q.Order("departure_time asc").Find(&routes).Error; err != nil {
		response.FromError(c, err)
		return
	}

	routeResponses := make([]RouteResponse, 0, len(routes))
	for _, r := range routes {
		routeResponses = append(routeResponses, toRouteResponse(r))
	}
	response.OK(c, http.StatusOK, "", gin.H{"routes": routeResponses})
}

// DeleteDriverRoute deactivates a route. Rides already booked on it keep their reference.
func DeleteDriverRoute(c *gin.Context) {
	driver, err := currentDriver(c)
	if err != nil {
		response.FromError(c, err)
		return
	}
	rID, err := paramID(c, "id")
	if err != nil {
		response.BadRequest(c, "Invalid route ID")
		return
	}

	var route models.DriverRoute
	if err := db(c).Where("id = ? AND driver_id = ?", rID, driver.ID).First(&route).Error; err != nil {
		response.FromError(c, err)
		return
	}

	err = db(c).Transaction(func(tx *gorm.DB) error {
		var open int64
		if err := tx.Model(&models.Ride{}).
			Where("driver_route_id = ? AND status IN ?", route.ID, []models.RideStatus{
				models.RideDriverAssigned, models.RideEnRoute, models.RideArrived, models.RideStarted,
			}).Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return response.ErrConflict
		}
		return tx.Model(&route).Update("is_active", false).Error
	})
	if err != nil {
		if err == response.ErrConflict {
			response.Fail(c, http.StatusConflict, response.CodeConflict, "Route has rides in progress")
			return
		}
		response.FromError(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Route deactivated", nil)
}

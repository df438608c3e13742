package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"yenko/internal/config"
	"yenko/internal/geo"
	"yenko/internal/middleware"
	"yenko/internal/models"
	"yenko/internal/response"
)

const writeWait = 5 * time.Second

// upgrader configures the WebSocket connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tokens, not cookies, authenticate the socket
	},
}

// LocationData is a position frame sent by the driver of a ride.
type LocationData struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"` // m/s
	Timestamp time.Time `json:"timestamp"`
}

// RideEvent is pushed to every subscriber of a ride.
type RideEvent struct {
	Type      string            `json:"type"` // "ride_status" or "driver_location"
	RideID    uint              `json:"ride_id"`
	Status    models.RideStatus `json:"status,omitempty"`
	DriverID  *uint             `json:"driver_id,omitempty"`
	Lat       float64           `json:"lat,omitempty"`
	Lng       float64           `json:"lng,omitempty"`
	Bearing   float64           `json:"bearing,omitempty"`
	EventType string            `json:"event_type,omitempty"`
	At        time.Time         `json:"at"`
}

// wsClient serialises writes to one connection; gorilla allows a single writer.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// RideHub fans ride events out to the participants watching a ride.
type RideHub struct {
	clients   map[uint]map[*wsClient]bool
	broadcast chan RideEvent
	mu        sync.Mutex
}

// NewRideHub creates a hub and starts its broadcast loop.
func NewRideHub() *RideHub {
	hub := &RideHub{
		clients:   make(map[uint]map[*wsClient]bool),
		broadcast: make(chan RideEvent, 100),
	}
	go hub.run()
	return hub
}

func (h *RideHub) run() {
	for ev := range h.broadcast {
		for _, c := range h.subscribers(ev.RideID) {
			if err := c.send(ev); err != nil {
				logrus.WithError(err).WithField("ride_id", ev.RideID).Info("Dropping ride subscriber after failed write.")
				h.Unregister(ev.RideID, c)
				c.conn.Close()
			}
		}
	}
}

func (h *RideHub) subscribers(rideID uint) []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients[rideID]))
	for c := range h.clients[rideID] {
		out = append(out, c)
	}
	return out
}

// Register subscribes a connection to a ride's events.
func (h *RideHub) Register(rideID uint, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[rideID]; !ok {
		h.clients[rideID] = make(map[*wsClient]bool)
	}
	h.clients[rideID][c] = true
}

// Unregister removes a connection from a ride.
func (h *RideHub) Unregister(rideID uint, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[rideID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, rideID)
		}
	}
}

// Publish queues an event without blocking the caller.
func (h *RideHub) Publish(ev RideEvent) {
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithField("ride_id", ev.RideID).Warn("Ride broadcast channel full, dropping event.")
	}
}

var rideHub = NewRideHub()

func publishRideStatus(ride *models.Ride) {
	rideHub.Publish(RideEvent{
		Type:     "ride_status",
		RideID:   ride.ID,
		Status:   ride.Status,
		DriverID: ride.DriverID,
		At:       time.Now(),
	})
}

// wsParticipant is who is on the other end of a ride socket.
type wsParticipant struct {
	userID   uint
	role     string
	driverID uint // set when the caller drives this ride
}

var (
	errNotParticipant = errors.New("not a participant of this ride")
	errBadRideID      = errors.New("missing or invalid ride_id")
	errRideClosed     = errors.New("ride is no longer active")
)

// authenticateRideSocket validates the token query parameter and checks the
// caller takes part in the requested ride.
func authenticateRideSocket(c *gin.Context) (*models.Ride, wsParticipant, error) {
	var p wsParticipant
	claims, err := middleware.ValidateToken(c.Query("token"), middleware.AccessToken)
	if err != nil {
		return nil, p, fmt.Errorf("invalid token: %w", err)
	}
	p.userID, p.role = claims.UserID, claims.Role

	rideID, err := strconv.ParseUint(c.Query("ride_id"), 10, 64)
	if err != nil {
		return nil, p, errBadRideID
	}
	var ride models.Ride
	if err := config.DB.First(&ride, rideID).Error; err != nil {
		return nil, p, err
	}

	switch p.role {
	case models.RoleAdmin:
		return &ride, p, nil
	case models.RolePassenger:
		var passenger models.Passenger
		if err := config.DB.Where("user_id = ?", p.userID).First(&passenger).Error; err == nil && passenger.ID == ride.PassengerID {
			return &ride, p, nil
		}
	case models.RoleDriver:
		var driver models.Driver
		if err := config.DB.Where("user_id = ?", p.userID).First(&driver).Error; err == nil &&
			ride.DriverID != nil && *ride.DriverID == driver.ID {
			p.driverID = driver.ID
			return &ride, p, nil
		}
	}
	return nil, p, errNotParticipant
}

// HandleRideWebSocket streams a ride's events to its passenger and driver.
// The driver may also send LocationData frames, which are stored and relayed.
func HandleRideWebSocket(c *gin.Context) {
	ride, who, err := authenticateRideSocket(c)
	if err != nil {
		status, code := http.StatusUnauthorized, response.CodeUnauthorized
		switch {
		case errors.Is(err, errBadRideID):
			status, code = http.StatusBadRequest, response.CodeValidation
		case errors.Is(err, errNotParticipant):
			status, code = http.StatusForbidden, response.CodeForbidden
		case errors.Is(err, gorm.ErrRecordNotFound):
			status, code = http.StatusNotFound, response.CodeNotFound
		}
		logrus.WithError(err).WithField("user_id", who.userID).Warn("Ride WebSocket connection refused")
		response.Fail(c, status, code, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}
	rideHub.Register(ride.ID, client)
	defer rideHub.Unregister(ride.ID, client)

	log := logrus.WithFields(logrus.Fields{"ride_id": ride.ID, "user_id": who.userID, "role": who.role})
	log.Info("Ride WebSocket connection established.")

	// current state first so late joiners are in sync
	client.send(RideEvent{Type: "ride_status", RideID: ride.ID, Status: ride.Status, DriverID: ride.DriverID, At: time.Now()})

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Ride WebSocket read ended.")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if who.driverID == 0 {
			log.Debug("Ignoring message from a non-driver subscriber.")
			continue
		}
		if err := processDriverLocation(ride.ID, who.driverID, p); err != nil {
			client.send(gin.H{"type": "error", "message": err.Error()})
		}
	}
	log.Info("Ride WebSocket connection closed.")
}

// processDriverLocation stores a driver position when it is significant and relays it.
func processDriverLocation(rideID, driverID uint, payload []byte) error {
	var loc LocationData
	if err := json.Unmarshal(payload, &loc); err != nil {
		return errors.New("invalid location data format")
	}
	if !geo.ValidCoordinate(loc.Lat, loc.Lng) {
		return errors.New("coordinates out of range")
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	if loc.Speed < 0 {
		loc.Speed = 0
	}

	// the socket can outlive the ride, so check its current status
	var ride models.Ride
	if err := config.DB.Select("id", "status").First(&ride, rideID).Error; err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("Database error fetching ride status")
		return errors.New("could not store location")
	}
	if ride.Status.IsTerminal() {
		return errRideClosed
	}

	var last models.LocationHistory
	err := config.DB.Where("ride_id = ?", rideID).Order("id desc").First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logrus.WithError(err).WithField("ride_id", rideID).Error("Database error fetching last location")
		return errors.New("could not store location")
	}

	var distance, bearing float64
	if last.ID != 0 {
		distance = geo.Haversine(last.Latitude, last.Longitude, loc.Lat, loc.Lng) * 1000
		bearing = geo.Bearing(last.Latitude, last.Longitude, loc.Lat, loc.Lng)
	}
	significant, eventType := shouldSaveLocation(distance, loc.Speed, loc.Timestamp, last)
	if !significant {
		return nil
	}

	record := models.LocationHistory{
		DriverID:         driverID,
		RideID:           rideID,
		Latitude:         loc.Lat,
		Longitude:        loc.Lng,
		Speed:            loc.Speed,
		Bearing:          bearing,
		IsMoving:         loc.Speed >= minSpeedForMoving,
		DistanceFromLast: distance,
		Timestamp:        loc.Timestamp,
		EventType:        eventType,
	}
	err = config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		return tx.Model(&models.Driver{}).Where("id = ?", driverID).
			Updates(map[string]interface{}{"current_lat": loc.Lat, "current_lng": loc.Lng}).Error
	})
	if err != nil {
		logrus.WithError(err).WithField("ride_id", rideID).Error("Failed to save driver location")
		return errors.New("could not store location")
	}

	rideHub.Publish(RideEvent{
		Type:      "driver_location",
		RideID:    rideID,
		DriverID:  &driverID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Bearing:   bearing,
		EventType: eventType,
		At:        loc.Timestamp,
	})
	return nil
}

const (
	minDistanceForSave   = 5.0  // meters
	minTimeDiffForSave   = 10.0 // seconds
	minSpeedForMoving    = 0.5  // m/s
	maxSpeedForStopped   = 1.0  // m/s
	periodicSaveInterval = 60 * time.Second
)

// shouldSaveLocation decides whether a position is worth keeping.
func shouldSaveLocation(distance, speed float64, at time.Time, last models.LocationHistory) (bool, string) {
	if last.ID == 0 {
		return true, "initial"
	}
	if distance >= minDistanceForSave {
		return true, "move"
	}

	elapsed := at.Sub(last.Timestamp)
	if last.IsMoving && speed < maxSpeedForStopped && elapsed.Seconds() >= minTimeDiffForSave {
		return true, "stopped"
	}
	if !last.IsMoving && speed >= minSpeedForMoving && elapsed.Seconds() >= minTimeDiffForSave {
		return true, "started"
	}
	if elapsed >= periodicSaveInterval {
		return true, "periodic"
	}
	return false, "insignificant"
}

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"yenko/internal/config"
	"yenko/internal/controllers"
	"yenko/internal/models"
)

const (
	adminPhone    = "+233200000001"
	webhookSecret = "hook-secret"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *captureSender) SendOTP(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = code
	return nil
}

func (s *captureSender) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) decode(t *testing.T, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, out), string(e.Data))
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	otp    *captureSender
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.AutoMigrate(db))

	prevDB, prevSettings, prevSender := config.DB, config.Current, controllers.OTPSender
	config.DB = db
	config.Current = config.Defaults()
	config.Current.JWTSecret = "test-secret"
	config.Current.PaymentWebhookSecret = webhookSecret
	config.Current.AdminPhones = []string{adminPhone}

	otp := &captureSender{codes: map[string]string{}}
	controllers.OTPSender = otp

	t.Cleanup(func() {
		config.DB, config.Current, controllers.OTPSender = prevDB, prevSettings, prevSender
		sqlDB.Close()
	})
	return &testAPI{t: t, router: SetupRouter(), otp: otp}
}

func (a *testAPI) call(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

type session struct {
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
	User struct {
		ID          uint   `json:"ID"`
		Role        string `json:"role"`
		PassengerID uint   `json:"passenger_id"`
		DriverID    uint   `json:"driver_id"`
	} `json:"user"`
	IsNewUser bool `json:"is_new_user"`
}

func (a *testAPI) signIn(phone, role, name string) session {
	a.t.Helper()
	status, env := a.call(http.MethodPost, "/api/auth/otp/send", "", gin.H{"phone": phone})
	require.Equal(a.t, http.StatusOK, status, env.Message)

	status, env = a.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{
		"phone": phone, "code": a.otp.last(phone), "role": role, "name": name,
	})
	require.Contains(a.t, []int{http.StatusOK, http.StatusCreated}, status, env.Message)
	var s session
	env.decode(a.t, &s)
	return s
}

// verifiedDriver signs a driver in and has the admin approve them.
func (a *testAPI) verifiedDriver(phone, name string) session {
	a.t.Helper()
	d := a.signIn(phone, models.RoleDriver, name)
	admin := a.signIn(adminPhone, "", "Admin")
	status, env := a.call(http.MethodPut, fmt.Sprintf("/api/admin/drivers/%d/verify", d.User.DriverID),
		admin.Tokens.AccessToken, gin.H{"verified": true})
	require.Equal(a.t, http.StatusOK, status, env.Message)
	return d
}

type rideData struct {
	Ride struct {
		ID       uint    `json:"ID"`
		Status   string  `json:"status"`
		DriverID *uint   `json:"driver_id"`
		Fare     string  `json:"fare"`
		Distance float64 `json:"distance_km"`
	} `json:"ride"`
}

func (a *testAPI) requestRide(token string) uint {
	a.t.Helper()
	status, env := a.call(http.MethodPost, "/api/passenger/rides", token, gin.H{
		"pickup":  gin.H{"address": "Osu", "lat": 5.5560, "lng": -0.1820},
		"dropoff": gin.H{"address": "Legon", "lat": 5.6505, "lng": -0.1870},
		"seats":   1,
	})
	require.Equal(a.t, http.StatusCreated, status, env.Message)
	var r rideData
	env.decode(a.t, &r)
	assert.Equal(a.t, "pending", r.Ride.Status)
	return r.Ride.ID
}

func (a *testAPI) setStatus(token string, rideID uint, s string) (int, envelope) {
	return a.call(http.MethodPut, fmt.Sprintf("/api/driver/rides/%d/status", rideID), token, gin.H{"status": s})
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOTPSignIn(t *testing.T) {
	api := newTestAPI(t)
	phone := "+233241112222"

	status, env := api.call(http.MethodPost, "/api/auth/otp/send", "", gin.H{"phone": "0241112222"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	status, _ = api.call(http.MethodPost, "/api/auth/otp/send", "", gin.H{"phone": phone})
	require.Equal(t, http.StatusOK, status)
	code := api.otp.last(phone)
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, env = api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": wrong})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "OTP_INVALID", env.Code)

	status, env = api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": code, "name": "Ama"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var s session
	env.decode(t, &s)
	assert.True(t, s.IsNewUser)
	assert.Equal(t, models.RolePassenger, s.User.Role)
	assert.NotZero(t, s.User.PassengerID)
	assert.NotEmpty(t, s.Tokens.AccessToken)

	// a consumed code cannot be replayed
	status, env = api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": code})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "OTP_INVALID", env.Code)

	status, env = api.call(http.MethodGet, "/api/auth/me", s.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status, env.Message)

	status, env = api.call(http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": s.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, status, env.Message)
	var refreshed session
	env.decode(t, &refreshed)
	assert.NotEmpty(t, refreshed.Tokens.AccessToken)

	// access tokens are not refresh tokens
	status, _ = api.call(http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": s.Tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	again := api.signIn(phone, models.RoleDriver, "")
	assert.False(t, again.IsNewUser)
	assert.Equal(t, models.RolePassenger, again.User.Role, "role is fixed at sign up")
}

func TestOTPExpiredAndAttempts(t *testing.T) {
	api := newTestAPI(t)
	phone := "+233241113333"

	config.Current.OTPTTL = -time.Minute
	api.call(http.MethodPost, "/api/auth/otp/send", "", gin.H{"phone": phone})
	status, env := api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": api.otp.last(phone)})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "OTP_EXPIRED", env.Code)

	config.Current.OTPTTL = 5 * time.Minute
	config.Current.OTPMaxAttempts = 2
	api.call(http.MethodPost, "/api/auth/otp/send", "", gin.H{"phone": phone})
	code := api.otp.last(phone)
	wrong := "999999"
	if code == wrong {
		wrong = "888888"
	}
	for i := 0; i < 2; i++ {
		status, _ = api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": wrong})
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, env = api.call(http.MethodPost, "/api/auth/otp/verify", "", gin.H{"phone": phone, "code": code})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", env.Code)
}

func TestAdminPhoneGetsAdminRole(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signIn(adminPhone, models.RolePassenger, "Root")
	assert.Equal(t, models.RoleAdmin, admin.User.Role)

	passenger := api.signIn("+233241114444", models.RolePassenger, "Kofi")
	status, env := api.call(http.MethodGet, "/api/admin/stats", passenger.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Code)

	status, _ = api.call(http.MethodGet, "/api/admin/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = api.call(http.MethodGet, "/api/admin/stats", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var stats struct {
		Counts map[string]int64 `json:"counts"`
	}
	env.decode(t, &stats)
	assert.Equal(t, int64(2), stats.Counts["users"])
	assert.Equal(t, int64(1), stats.Counts["passengers"])
}

func TestRideLifecycle(t *testing.T) {
	api := newTestAPI(t)
	passenger := api.signIn("+233241115555", models.RolePassenger, "Efua")
	rideID := api.requestRide(passenger.Tokens.AccessToken)

	unverified := api.signIn("+233241116666", models.RoleDriver, "Yaw")
	status, env := api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", rideID), unverified.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status, env.Message)

	driver := api.verifiedDriver("+233241117777", "Kwame")
	rival := api.verifiedDriver("+233241118888", "Akosua")

	status, env = api.call(http.MethodGet, "/api/driver/rides/pending?lat=5.5570&lng=-0.1830", driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var pending struct {
		Rides []struct {
			ID               uint    `json:"ID"`
			PickupDistanceKm float64 `json:"pickup_distance_km"`
		} `json:"rides"`
	}
	env.decode(t, &pending)
	require.Len(t, pending.Rides, 1)
	assert.Equal(t, rideID, pending.Rides[0].ID)

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", rideID), driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", rideID), rival.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)

	// rival is not on the ride
	status, _ = api.setStatus(rival.Tokens.AccessToken, rideID, "en_route")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = api.setStatus(driver.Tokens.AccessToken, rideID, "completed")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)

	status, _ = api.setStatus(driver.Tokens.AccessToken, rideID, "driver_assigned")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.setStatus(driver.Tokens.AccessToken, rideID, "teleported")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/passenger/rides/%d/rate", rideID), passenger.Tokens.AccessToken, gin.H{"score": 5})
	assert.Equal(t, http.StatusConflict, status, "rating before completion")

	for _, s := range []string{"en_route", "arrived", "started", "completed"} {
		status, env = api.setStatus(driver.Tokens.AccessToken, rideID, s)
		require.Equal(t, http.StatusOK, status, "%s: %s", s, env.Message)
	}

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/passenger/rides/%d/cancel", rideID), passenger.Tokens.AccessToken, gin.H{"reason": "late"})
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.call(http.MethodGet, fmt.Sprintf("/api/passenger/rides/%d", rideID), passenger.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var got rideData
	env.decode(t, &got)
	assert.Equal(t, "completed", got.Ride.Status)
	require.NotNil(t, got.Ride.DriverID)
	assert.Equal(t, driver.User.DriverID, *got.Ride.DriverID)

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/passenger/rides/%d/rate", rideID), passenger.Tokens.AccessToken, gin.H{"score": 4, "comment": "smooth"})
	assert.Equal(t, http.StatusCreated, status, env.Message)
	status, _ = api.call(http.MethodPost, fmt.Sprintf("/api/passenger/rides/%d/rate", rideID), passenger.Tokens.AccessToken, gin.H{"score": 1})
	assert.Equal(t, http.StatusConflict, status, "one rating per rater")

	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/rate", rideID), driver.Tokens.AccessToken, gin.H{"score": 5})
	assert.Equal(t, http.StatusCreated, status, env.Message)

	status, env = api.call(http.MethodGet, "/api/driver/profile", driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var profile struct {
		Profile struct {
			Driver struct {
				Rating      float64 `json:"rating"`
				RatingCount int     `json:"rating_count"`
			} `json:"driver"`
		} `json:"driver_profile"`
	}
	env.decode(t, &profile)
	assert.Equal(t, 4.0, profile.Profile.Driver.Rating)
	assert.Equal(t, 1, profile.Profile.Driver.RatingCount)

	status, env = api.call(http.MethodGet, "/api/passenger/rides?status=completed", passenger.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Total int64 `json:"total"`
	}
	env.decode(t, &list)
	assert.Equal(t, int64(1), list.Total)
}

func TestPassengerCancelsPendingRide(t *testing.T) {
	api := newTestAPI(t)
	passenger := api.signIn("+233241119999", models.RolePassenger, "Abena")
	other := api.signIn("+233241110000", models.RolePassenger, "Esi")
	rideID := api.requestRide(passenger.Tokens.AccessToken)

	path := fmt.Sprintf("/api/passenger/rides/%d/cancel", rideID)
	status, _ := api.call(http.MethodPost, path, other.Tokens.AccessToken, gin.H{"reason": "not mine"})
	assert.Equal(t, http.StatusNotFound, status)

	status, env := api.call(http.MethodPost, path, passenger.Tokens.AccessToken, gin.H{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var r rideData
	env.decode(t, &r)
	assert.Equal(t, "cancelled", r.Ride.Status)

	status, env = api.call(http.MethodPost, path, passenger.Tokens.AccessToken, gin.H{"reason": "again"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)
}

func TestPayments(t *testing.T) {
	api := newTestAPI(t)
	passenger := api.signIn("+233242220001", models.RolePassenger, "Adwoa")
	driver := api.verifiedDriver("+233242220002", "Kojo")

	unassigned := api.requestRide(passenger.Tokens.AccessToken)
	status, _ := api.call(http.MethodPost, "/api/payments/initiate", passenger.Tokens.AccessToken, gin.H{"ride_id": unassigned, "method": "cash"})
	assert.Equal(t, http.StatusConflict, status, "no driver yet")

	rideID := api.requestRide(passenger.Tokens.AccessToken)
	status, env := api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", rideID), driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, _ = api.call(http.MethodPost, "/api/payments/initiate", passenger.Tokens.AccessToken, gin.H{"ride_id": rideID, "method": "bitcoin"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = api.call(http.MethodPost, "/api/payments/initiate", passenger.Tokens.AccessToken, gin.H{"ride_id": rideID, "method": "mobile_money"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var initiated struct {
		Payment struct {
			ID           uint   `json:"ID"`
			Reference    string `json:"reference"`
			Status       string `json:"status"`
			Amount       string `json:"amount"`
			DriverAmount string `json:"driver_amount"`
			PlatformFee  string `json:"platform_fee"`
		} `json:"payment"`
		CheckoutURL string `json:"checkout_url"`
	}
	env.decode(t, &initiated)
	assert.Equal(t, models.PaymentPending, initiated.Payment.Status)
	assert.True(t, strings.HasPrefix(initiated.Payment.Reference, "YNK-"))
	assert.Contains(t, initiated.CheckoutURL, initiated.Payment.Reference)

	status, env = api.call(http.MethodPost, "/api/payments/initiate", passenger.Tokens.AccessToken, gin.H{"ride_id": rideID, "method": "cash"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Code)

	hook := func(secret string, body gin.H) (int, envelope) {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Secret", secret)
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		return w.Code, env
	}
	body := gin.H{"reference": initiated.Payment.Reference, "status": "completed", "provider_reference": "MOMO-1"}

	status, _ = hook("wrong", body)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = hook(webhookSecret, body)
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = hook(webhookSecret, body)
	assert.Equal(t, http.StatusOK, status, "retried callbacks are accepted")
	assert.Equal(t, "Already processed", env.Message)

	status, _ = hook(webhookSecret, gin.H{"reference": initiated.Payment.Reference, "status": "failed"})
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.call(http.MethodGet, fmt.Sprintf("/api/payments/%d", initiated.Payment.ID), driver.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status, env.Message)
	outsider := api.signIn("+233242220003", models.RolePassenger, "Nana")
	status, _ = api.call(http.MethodGet, fmt.Sprintf("/api/payments/%d", initiated.Payment.ID), outsider.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = api.call(http.MethodGet, fmt.Sprintf("/api/payments/ride/%d", rideID), passenger.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var listed struct {
		Payments []json.RawMessage `json:"payments"`
	}
	env.decode(t, &listed)
	assert.Len(t, listed.Payments, 1)

	status, env = api.call(http.MethodGet, "/api/driver/earnings", driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var earnings struct {
		TotalEarned string `json:"total_earned"`
		PaidRides   int64  `json:"paid_rides"`
	}
	env.decode(t, &earnings)
	assert.True(t, decimal.RequireFromString(initiated.Payment.DriverAmount).Equal(decimal.RequireFromString(earnings.TotalEarned)),
		"%s != %s", initiated.Payment.DriverAmount, earnings.TotalEarned)
	assert.Equal(t, int64(1), earnings.PaidRides)
}

func TestWaitlist(t *testing.T) {
	api := newTestAPI(t)

	status, env := api.call(http.MethodPost, "/api/waitlist", "", gin.H{"email": "Ama@Example.com", "city": "Accra"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var joined struct {
		Position int64 `json:"position"`
	}
	env.decode(t, &joined)
	assert.Equal(t, int64(1), joined.Position)

	status, env = api.call(http.MethodPost, "/api/waitlist", "", gin.H{"email": "ama@example.com"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "This email is already on the waitlist", env.Message)

	status, _ = api.call(http.MethodPost, "/api/waitlist", "", gin.H{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = api.call(http.MethodGet, "/api/waitlist/count", "", nil)
	require.Equal(t, http.StatusOK, status)
	var count struct {
		Count int64 `json:"count"`
	}
	env.decode(t, &count)
	assert.Equal(t, int64(1), count.Count)
}

func TestRoutesAndMatching(t *testing.T) {
	api := newTestAPI(t)
	driver := api.verifiedDriver("+233243330001", "Kwesi")
	passenger := api.signIn("+233243330002", models.RolePassenger, "Afia")

	departure := time.Now().Add(30 * time.Minute).UTC()
	geometry := `{"type":"LineString","coordinates":[[-0.1870,5.6037],[-0.1685,5.6268],[-0.1500,5.6500]]}`
	routeBody := gin.H{
		"origin":          gin.H{"address": "Circle", "lat": 5.6037, "lng": -0.1870},
		"destination":     gin.H{"address": "Madina", "lat": 5.6500, "lng": -0.1500},
		"geometry":        geometry,
		"departure_time":  departure,
		"available_seats": 3,
	}

	status, _ := api.call(http.MethodPost, "/api/driver/routes", driver.Tokens.AccessToken, gin.H{
		"origin": routeBody["origin"], "destination": routeBody["destination"],
		"geometry": `{"type":"Point","coordinates":[-0.18,5.6]}`, "departure_time": departure, "available_seats": 3,
	})
	assert.Equal(t, http.StatusBadRequest, status, "geometry must be a LineString")

	status, env := api.call(http.MethodPost, "/api/driver/routes", driver.Tokens.AccessToken, routeBody)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created struct {
		Route struct {
			ID       uint   `json:"ID"`
			Geometry string `json:"geometry"`
		} `json:"route"`
	}
	env.decode(t, &created)
	assert.Contains(t, created.Route.Geometry, "LineString")

	trip := gin.H{
		"pickup":         gin.H{"lat": 5.6040, "lng": -0.1865},
		"dropoff":        gin.H{"lat": 5.6495, "lng": -0.1505},
		"departure_time": departure.Add(10 * time.Minute),
		"seats":          2,
	}
	status, env = api.call(http.MethodPost, "/api/matching/find", passenger.Tokens.AccessToken, trip)
	require.Equal(t, http.StatusOK, status, env.Message)
	var found struct {
		Matches []struct {
			RouteID    uint    `json:"route_id"`
			DriverName string  `json:"driver_name"`
			Score      float64 `json:"score"`
		} `json:"matches"`
	}
	env.decode(t, &found)
	require.Len(t, found.Matches, 1)
	assert.Equal(t, created.Route.ID, found.Matches[0].RouteID)
	assert.Equal(t, "Kwesi", found.Matches[0].DriverName)

	farTrip := gin.H{
		"pickup":  gin.H{"lat": 6.6885, "lng": -1.6244},
		"dropoff": gin.H{"lat": 6.7000, "lng": -1.6000},
	}
	status, env = api.call(http.MethodPost, "/api/matching/find", passenger.Tokens.AccessToken, farTrip)
	require.Equal(t, http.StatusOK, status)
	env.decode(t, &found)
	assert.Empty(t, found.Matches)

	status, env = api.call(http.MethodPost, "/api/matching/estimate", "", farTrip)
	require.Equal(t, http.StatusOK, status, env.Message)
	var est struct {
		Quote struct {
			Currency string `json:"currency"`
		} `json:"quote"`
	}
	env.decode(t, &est)
	assert.Equal(t, "GHS", est.Quote.Currency)

	// booking on the route reserves a seat once the driver accepts
	status, env = api.call(http.MethodPost, "/api/passenger/rides", passenger.Tokens.AccessToken, gin.H{
		"pickup": trip["pickup"], "dropoff": trip["dropoff"], "seats": 2, "driver_route_id": created.Route.ID,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var booked rideData
	env.decode(t, &booked)
	status, env = api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", booked.Ride.ID), driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)

	var route models.DriverRoute
	require.NoError(t, config.DB.First(&route, created.Route.ID).Error)
	assert.Equal(t, 1, route.AvailableSeats)

	status, _ = api.call(http.MethodDelete, fmt.Sprintf("/api/driver/routes/%d", created.Route.ID), driver.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, status, "route has a ride in progress")
}

func TestRideWebSocket(t *testing.T) {
	api := newTestAPI(t)
	passenger := api.signIn("+233244440001", models.RolePassenger, "Yaa")
	driver := api.verifiedDriver("+233244440002", "Fiifi")
	outsider := api.signIn("+233244440003", models.RolePassenger, "Kobby")
	rideID := api.requestRide(passenger.Tokens.AccessToken)

	srv := httptest.NewServer(api.router)
	defer srv.Close()
	wsURL := func(token string) string {
		return fmt.Sprintf("ws%s/api/ws/rides?token=%s&ride_id=%d", strings.TrimPrefix(srv.URL, "http"), token, rideID)
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(outsider.Tokens.AccessToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	pconn, _, err := websocket.DefaultDialer.Dial(wsURL(passenger.Tokens.AccessToken), nil)
	require.NoError(t, err)
	defer pconn.Close()

	type event struct {
		Type    string  `json:"type"`
		RideID  uint    `json:"ride_id"`
		Status  string  `json:"status"`
		Lat     float64 `json:"lat"`
		Lng     float64 `json:"lng"`
		Message string  `json:"message"`
	}
	next := func(conn *websocket.Conn, typ string) event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			var ev event
			require.NoError(t, conn.ReadJSON(&ev))
			if ev.Type == typ {
				return ev
			}
		}
	}

	ev := next(pconn, "ride_status")
	assert.Equal(t, "pending", ev.Status)

	status, env := api.call(http.MethodPost, fmt.Sprintf("/api/driver/rides/%d/accept", rideID), driver.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	ev = next(pconn, "ride_status")
	assert.Equal(t, "driver_assigned", ev.Status)

	dconn, _, err := websocket.DefaultDialer.Dial(wsURL(driver.Tokens.AccessToken), nil)
	require.NoError(t, err)
	defer dconn.Close()
	next(dconn, "ride_status")

	require.NoError(t, dconn.WriteJSON(gin.H{"lat": 5.5600, "lng": -0.1800, "speed": 8.5}))
	ev = next(pconn, "driver_location")
	assert.Equal(t, rideID, ev.RideID)
	assert.InDelta(t, 5.56, ev.Lat, 1e-9)

	require.NoError(t, dconn.WriteJSON(gin.H{"lat": 95.0, "lng": 0}))
	ev = next(dconn, "error")
	assert.NotEmpty(t, ev.Message)

	var stored int64
	require.NoError(t, config.DB.Model(&models.LocationHistory{}).Where("ride_id = ?", rideID).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)
}

func TestProfilesAndAdminLists(t *testing.T) {
	api := newTestAPI(t)
	passenger := api.signIn("+233245550001", models.RolePassenger, "Mansa")
	driver := api.signIn("+233245550002", models.RoleDriver, "Kofi")
	admin := api.signIn(adminPhone, "", "Admin")

	status, env := api.call(http.MethodPut, "/api/passenger/profile", passenger.Tokens.AccessToken, gin.H{
		"home_address": "East Legon", "emergency_contact": "+233245559999",
	})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = api.call(http.MethodGet, "/api/passenger/profile", passenger.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var profile struct {
		Profile struct {
			Passenger struct {
				HomeAddress string `json:"home_address"`
			} `json:"passenger"`
		} `json:"profile"`
	}
	env.decode(t, &profile)
	assert.Equal(t, "East Legon", profile.Profile.Passenger.HomeAddress)

	status, _ = api.call(http.MethodGet, "/api/passenger/profile", driver.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.call(http.MethodPut, "/api/driver/availability", driver.Tokens.AccessToken, gin.H{"is_online": true, "lat": 5.6})
	assert.Equal(t, http.StatusBadRequest, status, "lat without lng")
	status, env = api.call(http.MethodPut, "/api/driver/availability", driver.Tokens.AccessToken, gin.H{"is_online": true, "lat": 5.6, "lng": -0.18})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = api.call(http.MethodGet, "/api/admin/drivers?verified=false", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var drivers struct {
		Items []struct {
			ID       uint `json:"ID"`
			IsOnline bool `json:"is_online"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	env.decode(t, &drivers)
	require.Equal(t, int64(1), drivers.Total)
	assert.True(t, drivers.Items[0].IsOnline)

	status, env = api.call(http.MethodGet, "/api/admin/users?role=passenger", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var users struct {
		Total int64 `json:"total"`
	}
	env.decode(t, &users)
	assert.Equal(t, int64(1), users.Total)

	status, _ = api.call(http.MethodGet, "/api/admin/users?role=pilot", admin.Tokens.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	api.call(http.MethodPost, "/api/waitlist", "", gin.H{"email": "early@yenko.africa"})
	status, env = api.call(http.MethodGet, "/api/admin/waitlist", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var waitlist struct {
		Total int64 `json:"total"`
	}
	env.decode(t, &waitlist)
	assert.Equal(t, int64(1), waitlist.Total)

	api.requestRide(passenger.Tokens.AccessToken)
	status, env = api.call(http.MethodGet, "/api/admin/rides?status=pending", admin.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	var rides struct {
		Total int64 `json:"total"`
	}
	env.decode(t, &rides)
	assert.Equal(t, int64(1), rides.Total)
}

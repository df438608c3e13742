// Package client is a Go client for the Yenko HTTP API.
//
// Authenticated calls carry the current access token. When the API answers
// 401 the client refreshes the token pair once, sharing a single refresh among
// concurrent callers, and replays the request one time.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the refresh token was rejected. Tokens are cleared.
var ErrSessionExpired = errors.New("session expired, sign in again")

// APIError is a non-2xx response decoded from the envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Tokens is the pair issued on sign in and refresh.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu     sync.RWMutex
	tokens Tokens

	refreshGroup singleflight.Group

	// OnTokens is called after every successful sign in or refresh.
	OnTokens func(Tokens)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokens seeds the client with a stored token pair.
func WithTokens(t Tokens) Option {
	return func(c *Client) { c.tokens = t }
}

// New creates a client for baseURL, for example "https://api.yenko.app/api".
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tokens returns the current token pair.
func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) setTokens(t Tokens) {
	c.mu.Lock()
	c.tokens = t
	c.mu.Unlock()
	if c.OnTokens != nil && t.AccessToken != "" {
		c.OnTokens(t)
	}
}

// do sends one request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, accessToken string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.StatusCode >= 300 || (!env.Success && env.Message != "") {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

// doAuthed sends an authenticated request, refreshing and replaying once on 401.
func (c *Client) doAuthed(ctx context.Context, method, path string, body, out interface{}) error {
	used := c.Tokens().AccessToken
	err := c.do(ctx, method, path, body, out, used)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	fresh, err := c.refreshAfter(ctx, used)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, body, out, fresh)
}

// refreshAfter returns an access token newer than stale, refreshing at most
// once for all callers that failed with the same token.
func (c *Client) refreshAfter(ctx context.Context, stale string) (string, error) {
	if current := c.Tokens(); current.AccessToken != "" && current.AccessToken != stale {
		return current.AccessToken, nil
	}

	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		// a caller that lost the race may arrive after the rotation finished
		if current := c.Tokens(); current.AccessToken != stale && current.AccessToken != "" {
			return current, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(Tokens).AccessToken, nil
}

func (c *Client) refresh(ctx context.Context) (Tokens, error) {
	refreshToken := c.Tokens().RefreshToken
	if refreshToken == "" {
		c.setTokens(Tokens{})
		return Tokens{}, ErrSessionExpired
	}

	var data struct {
		Tokens Tokens `json:"tokens"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, &data, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.setTokens(Tokens{})
			return Tokens{}, ErrSessionExpired
		}
		return Tokens{}, err
	}
	c.setTokens(data.Tokens)
	return data.Tokens, nil
}

// Refresh forces a token refresh.
func (c *Client) Refresh(ctx context.Context) (Tokens, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return Tokens{}, err
	}
	return v.(Tokens), nil
}

// SendOTP asks the API to text a login code. It returns the code lifetime.
func (c *Client) SendOTP(ctx context.Context, phone string) (time.Duration, error) {
	var data struct {
		ExpiresIn int `json:"expires_in"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/otp/send", map[string]string{"phone": phone}, &data, ""); err != nil {
		return 0, err
	}
	return time.Duration(data.ExpiresIn) * time.Second, nil
}

// VerifyOTPRequest signs a user in. Role and Name are used on first sign in only.
type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
}

// User is the signed-in account.
type User struct {
	ID          uint   `json:"id"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsVerified  bool   `json:"is_verified"`
	PassengerID uint   `json:"passenger_id,omitempty"`
	DriverID    uint   `json:"driver_id,omitempty"`
}

// Session is the result of VerifyOTP.
type Session struct {
	Tokens    Tokens `json:"tokens"`
	User      User   `json:"user"`
	IsNewUser bool   `json:"is_new_user"`
}

// VerifyOTP exchanges a code for a session and stores its tokens.
func (c *Client) VerifyOTP(ctx context.Context, in VerifyOTPRequest) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/otp/verify", in, &s, ""); err != nil {
		return nil, err
	}
	c.setTokens(s.Tokens)
	return &s, nil
}

// Location is a named point.
type Location struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// Quote is a fare estimate.
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

// TripRequest describes a trip for estimates.
type TripRequest struct {
	Pickup        Location   `json:"pickup"`
	Dropoff       Location   `json:"dropoff"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	Seats         int        `json:"seats,omitempty"`
}

// EstimateFare quotes a trip. No sign in is needed.
func (c *Client) EstimateFare(ctx context.Context, trip TripRequest) (*Quote, error) {
	var data struct {
		Quote Quote `json:"quote"`
	}
	if err := c.do(ctx, http.MethodPost, "/matching/estimate", trip, &data, ""); err != nil {
		return nil, err
	}
	return &data.Quote, nil
}

// RideRequest books a ride as the signed-in passenger.
type RideRequest struct {
	Pickup        Location   `json:"pickup"`
	Dropoff       Location   `json:"dropoff"`
	Seats         int        `json:"seats,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	DriverRouteID *uint      `json:"driver_route_id,omitempty"`
}

// Ride is a ride as the API returns it.
type Ride struct {
	ID             uint            `json:"id"`
	PassengerID    uint            `json:"passenger_id"`
	DriverID       *uint           `json:"driver_id,omitempty"`
	DriverRouteID  *uint           `json:"driver_route_id,omitempty"`
	PickupAddress  string          `json:"pickup_address"`
	PickupLat      float64         `json:"pickup_lat"`
	PickupLng      float64         `json:"pickup_lng"`
	DropoffAddress string          `json:"dropoff_address"`
	DropoffLat     float64         `json:"dropoff_lat"`
	DropoffLng     float64         `json:"dropoff_lng"`
	DistanceKm     float64         `json:"distance_km"`
	Fare           decimal.Decimal `json:"fare"`
	Seats          int             `json:"seats"`
	Status         string          `json:"status"`
	ScheduledAt    *time.Time      `json:"scheduled_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
}

// RequestRide books a ride and returns it with its quote.
func (c *Client) RequestRide(ctx context.Context, in RideRequest) (*Ride, *Quote, error) {
	var data struct {
		Ride  Ride  `json:"ride"`
		Quote Quote `json:"quote"`
	}
	if err := c.doAuthed(ctx, http.MethodPost, "/passenger/rides", in, &data); err != nil {
		return nil, nil, err
	}
	return &data.Ride, &data.Quote, nil
}

// GetRide fetches one of the signed-in passenger's rides.
func (c *Client) GetRide(ctx context.Context, id uint) (*Ride, error) {
	var data struct {
		Ride Ride `json:"ride"`
	}
	if err := c.doAuthed(ctx, http.MethodGet, fmt.Sprintf("/passenger/rides/%d", id), nil, &data); err != nil {
		return nil, err
	}
	return &data.Ride, nil
}

// WaitlistRequest is a pre-launch signup.
type WaitlistRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	City  string `json:"city,omitempty"`
}

// JoinWaitlist signs an email up and returns its position.
func (c *Client) JoinWaitlist(ctx context.Context, in WaitlistRequest) (int64, error) {
	var data struct {
		Position int64 `json:"position"`
	}
	if err := c.do(ctx, http.MethodPost, "/waitlist", in, &data, ""); err != nil {
		return 0, err
	}
	return data.Position, nil
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"yenko/internal/config"
	"yenko/internal/response"
)

const (
	AccessToken  = "access"
	RefreshToken = "refresh"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

var ErrWrongTokenType = errors.New("wrong token type")

// Claims are the JWT claims issued by the API.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

func secret() []byte {
	return []byte(config.Current.JWTSecret)
}

func generateToken(userID uint, role, kind string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID:    userID,
		Role:      role,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			Issuer:    "yenko",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// GenerateTokenPair issues a short-lived access token and a long-lived refresh token.
func GenerateTokenPair(userID uint, role string) (TokenPair, error) {
	now := time.Now()
	access, err := generateToken(userID, role, AccessToken, config.Current.AccessTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := generateToken(userID, role, RefreshToken, config.Current.RefreshTokenTTL, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(config.Current.AccessTokenTTL),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken parses tokenStr and checks it is a valid token of the given kind.
func ValidateToken(tokenStr, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != kind {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// authenticate validates the bearer token and stores its claims on c.
// It aborts with 401 and returns false when the token is missing or invalid.
func authenticate(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Missing or invalid Authorization header")
		return false
	}

	claims, err := ValidateToken(strings.TrimPrefix(authHeader, "Bearer "), AccessToken)
	if err != nil {
		response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid or expired token")
		return false
	}

	// Store claims in context for downstream handlers
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxRole, claims.Role)
	return true
}

// RequireAuth ensures a valid access token is present
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequireRole ensures the caller carries one of the given roles. It
// authenticates the request itself unless RequireAuth already ran.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxRole); !ok && !authenticate(c) {
			return
		}

		role := CurrentRole(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, response.CodeForbidden, "Insufficient permissions")
	}
}

// CurrentUserID returns the authenticated User.ID.
func CurrentUserID(c *gin.Context) uint {
	return c.GetUint(ctxUserID)
}

// CurrentRole returns the authenticated user's role.
func CurrentRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

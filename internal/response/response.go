// Package response writes the {success, message, code, data} envelope every endpoint returns.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	logrus "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Error codes carried in the envelope.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeOTPInvalid        = "OTP_INVALID"
	CodeOTPExpired        = "OTP_EXPIRED"
	CodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	CodeInternal          = "INTERNAL_ERROR"
)

var (
	ErrUnauthorized      = errors.New("authentication required")
	ErrForbidden         = errors.New("you are not allowed to do that")
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	ErrInvalidTransition = errors.New("ride cannot move to that status")
	ErrOTPInvalid        = errors.New("invalid verification code")
	ErrOTPExpired        = errors.New("verification code expired")
	ErrTooManyAttempts   = errors.New("too many attempts, request a new code")
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes a successful envelope.
func OK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope.
func Fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Envelope{Success: false, Message: message, Code: code})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Success: false, Message: message, Code: code})
}

// BadRequest reports a validation failure.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, CodeValidation, message)
}

// FromError maps err to a status and code and writes it. Unknown errors are
// logged and reported as a generic 500 so internals never leak.
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		Fail(c, status, code, "internal server error")
		return
	}
	message := err.Error()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		message = ErrNotFound.Error()
	}
	Fail(c, status, code, message)
}

// Classify returns the HTTP status and envelope code for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case IsUniqueViolation(err), errors.Is(err, ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, ErrOTPInvalid):
		return http.StatusUnauthorized, CodeOTPInvalid
	case errors.Is(err, ErrOTPExpired):
		return http.StatusUnauthorized, CodeOTPExpired
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests, CodeTooManyAttempts
	}
	return http.StatusInternalServerError, CodeInternal
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

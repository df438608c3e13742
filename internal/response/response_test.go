package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassify(t *testing.T) {
	cases := map[error]int{
		gorm.ErrRecordNotFound:                    http.StatusNotFound,
		fmt.Errorf("load ride: %w", ErrNotFound):  http.StatusNotFound,
		gorm.ErrDuplicatedKey:                     http.StatusConflict,
		&pq.Error{Code: "23505"}:                  http.StatusConflict,
		fmt.Errorf("x: %w", ErrInvalidTransition): http.StatusConflict,
		ErrForbidden:                              http.StatusForbidden,
		ErrOTPExpired:                             http.StatusUnauthorized,
		ErrTooManyAttempts:                        http.StatusTooManyRequests,
		errors.New("connection reset by peer"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		got, _ := Classify(err)
		assert.Equal(t, want, got, err.Error())
	}
}

func TestFromErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, errors.New("pq: password authentication failed"))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "internal server error", env.Message)
}

func TestOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	OK(c, http.StatusCreated, "created", gin.H{"id": 7})

	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, env["success"])
	assert.Equal(t, "created", env["message"])
	assert.NotContains(t, env, "code")
}

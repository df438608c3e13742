package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Log returns a logrus entry tagged with the request ID and caller.
func Log(c *gin.Context) *logrus.Entry {
	fields := logrus.Fields{"request_id": c.GetString("request_id")}
	if id := CurrentUserID(c); id != 0 {
		fields["user_id"] = id
	}
	return logrus.WithFields(fields)
}

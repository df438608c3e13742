package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	assert.Equal(t, "+********4567", mask("+233201234567"))
	assert.Equal(t, "123", mask("123"))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.SendOTP(context.Background(), "+233201234567", "123456"))
}

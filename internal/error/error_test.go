package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := New(AuthError, "authentication failed for admin@10.0.0.1", errors.New("unable to authenticate"))
	assert.Equal(t, "authentication failed for admin@10.0.0.1: unable to authenticate", err.Error())

	bare := New(ValidationError, "host is required", nil)
	assert.Equal(t, "host is required", bare.Error())
}

func TestIsType(t *testing.T) {
	inner := New(AuthError, "bad credentials", nil)
	outer := New(ConnectionError, "execute failed twice", inner)
	wrapped := fmt.Errorf("running check: %w", outer)

	assert.True(t, IsType(wrapped, ConnectionError))
	assert.True(t, IsType(wrapped, AuthError))
	assert.False(t, IsType(wrapped, TransferError))
	assert.False(t, IsType(errors.New("plain"), AuthError))
	assert.False(t, IsType(nil, AuthError))
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "connect", ConnectError.String())
	assert.Equal(t, "ErrorType(42)", ErrorType(42).String())
}

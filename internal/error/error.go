// internal/error/error.go

package error

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	// AuthError means the remote host rejected the credentials. Never retried.
	AuthError
	// ConnectError means the transport could not be opened after the retry.
	ConnectError
	// ConnectionError means an execution failed twice on a live transport.
	ConnectionError
	TransferError
	CryptoError
	ValidationError
)

var typeNames = map[ErrorType]string{
	ConfigError:     "config",
	AuthError:       "auth",
	ConnectError:    "connect",
	ConnectionError: "connection",
	TransferError:   "transfer",
	CryptoError:     "crypto",
	ValidationError: "validation",
}

func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ErrorType(%d)", int(t))
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Err
	}
	return false
}

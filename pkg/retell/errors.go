package retell

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Error codes as constants
const (
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeProvisionFailed  = "PROVISION_FAILED"
	ErrCodeRegisterFailed   = "REGISTER_FAILED"
	ErrCodeStartFailed      = "START_FAILED"
	ErrCodeCallError        = "CALL_ERROR"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeJSONParse        = "JSON_PARSE_ERROR"
	ErrCodeTimeout          = "TIMEOUT_ERROR"
)

// RetellError carries a stable code next to the human readable message.
type RetellError struct {
	Message   string
	Code      string
	Timestamp time.Time
	Details   map[string]interface{}
	err       error
}

func NewRetellError(message, code string) *RetellError {
	return &RetellError{
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func (e *RetellError) Error() string {
	return e.Message
}

func (e *RetellError) Unwrap() error {
	return e.err
}

// AddDetail attaches a key/value that ends up in structured logs.
func (e *RetellError) AddDetail(key string, value interface{}) *RetellError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *RetellError) GetDetail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	value, exists := e.Details[key]
	return value, exists
}

// Specific error creators with common codes
func NewConfigError(message string) *RetellError {
	return NewRetellError(message, ErrCodeConfigInvalid)
}

func NewJSONError(message string) *RetellError {
	return NewRetellError(message, ErrCodeJSONParse)
}

// NewHTTPError maps a non-2xx provider response onto a RetellError.
func NewHTTPError(status int, message string) *RetellError {
	if message == "" {
		message = http.StatusText(status)
	}
	code := ErrCodeProvisionFailed
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = ErrCodeAuthFailed
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrCodeTimeout
	}
	return NewRetellError(message, code).AddDetail("status_code", status)
}

// WrapError keeps err reachable through errors.Is/As.
func WrapError(err error, code string) *RetellError {
	if err == nil {
		return nil
	}
	var rErr *RetellError
	if errors.As(err, &rErr) && rErr.Code == code {
		return rErr
	}
	vErr := NewRetellError(err.Error(), code)
	vErr.err = err
	return vErr
}

// IsErrorCode reports whether any RetellError in err's chain has code.
func IsErrorCode(err error, code string) bool {
	var rErr *RetellError
	for err != nil {
		if !errors.As(err, &rErr) {
			return false
		}
		if rErr.Code == code {
			return true
		}
		err = rErr.err
	}
	return false
}

// MessageOr returns err's message, or fallback when err is nil or its
// message is blank.
func MessageOr(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}

func IsRetryableError(err error) bool {
	for _, code := range []string{ErrCodeConnectionFailed, ErrCodeTimeout} {
		if IsErrorCode(err, code) {
			return true
		}
	}
	return false
}

func IsCriticalError(err error) bool {
	for _, code := range []string{ErrCodeAuthFailed, ErrCodeConfigInvalid} {
		if IsErrorCode(err, code) {
			return true
		}
	}
	return false
}

package gateway

import (
	"errors"
	"fmt"
)

// GatewayError reports a failed call to the payment processor: a transport
// failure, a non-2xx status, a "status": false envelope or a response that
// could not be decoded.
type GatewayError struct {
	Op         string // e.g. "initialize", "verify"
	StatusCode int    // HTTP status, 0 when the request never completed
	Message    string // processor message or decode failure
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is or wraps a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

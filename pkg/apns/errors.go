package apns

import (
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by every error raised while resolving the
// gateway configuration. These errors are fatal and never retried.
var ErrConfiguration = errors.New("apns: invalid configuration")

var (
	ErrCertificateNotSet   = fmt.Errorf("%w: path to the pem file is not set", ErrConfiguration)
	ErrCertificateNotFound = fmt.Errorf("%w: pem file does not exist", ErrConfiguration)
)

// Caller errors raised at encode time, before any network activity.
var (
	ErrPayloadTooLarge = errors.New("apns: payload is too large")
	ErrInvalidToken    = errors.New("apns: invalid device token")
)

// ErrMalformedRecord is returned for a feedback chunk that cannot be decoded.
var ErrMalformedRecord = errors.New("apns: malformed feedback record")

// ErrRetriesExhausted wraps the last transport failure once the retry
// ceiling has been reached.
var ErrRetriesExhausted = errors.New("apns: retries exhausted")

// TransportError is a transient socket or TLS failure. Op is "connect",
// "write" or "read".
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("apns: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transport failure that the retry
// policy may recover from by reconnecting.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

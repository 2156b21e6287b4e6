package driven

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// ErrorKind is the closed set of connector failure kinds. The orchestrator
// picks its retry and cooldown policy from the kind alone.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindAuth
	KindRateLimit
	KindNotSupported
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindNotSupported:
		return "not_supported"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

// Sentinels matched by errors.Is against any *ConnectorError of that kind.
var (
	ErrAuth         = errors.New("authentication failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrTransient    = errors.New("transient failure")
	ErrNotSupported = errors.New("not supported")
	ErrValidation   = errors.New("invalid vendor payload")
)

// ConnectorError is returned by every Connector operation that fails.
type ConnectorError struct {
	Kind       ErrorKind
	Vendor     model.Vendor
	Op         string
	StatusCode int
	// RetryAfter is the vendor's hint for rate limits; zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *ConnectorError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Vendor, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *ConnectorError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindRateLimit:
		return ErrRateLimited
	case KindNotSupported:
		return ErrNotSupported
	case KindValidation:
		return ErrValidation
	default:
		return ErrTransient
	}
}

// NewError builds a ConnectorError of the given kind.
func NewError(kind ErrorKind, vendor model.Vendor, op string, err error) *ConnectorError {
	return &ConnectorError{Kind: kind, Vendor: vendor, Op: op, Err: err}
}

// KindOf classifies err. Errors that are not connector errors count as
// transient so they are retried on the next cycle.
func KindOf(err error) ErrorKind {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

// RetryAfterOf returns the rate limit hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

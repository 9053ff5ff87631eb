package types

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind int

const (
	KindAuth ErrorKind = iota
	KindRateLimited
	KindTransientNetwork
	KindContentRejected
	KindUnexpectedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientNetwork:
		return "transient_network"
	case KindContentRejected:
		return "content_rejected"
	case KindUnexpectedResponse:
		return "unexpected_response"
	default:
		return "unknown"
	}
}

// DeliveryError is the classified form of a platform failure. Deliverers
// translate their platform's error codes into one of the kinds above;
// the pipeline only ever branches on Kind.
type DeliveryError struct {
	Platform   string
	Kind       ErrorKind
	Code       int
	Message    string
	RetryAfter time.Duration
	Raw        string
}

func (e *DeliveryError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d): %s", e.Platform, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Platform, e.Kind, e.Message)
}

// Retryable reports whether the failure is worth another attempt on the
// same method.
func (e *DeliveryError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransientNetwork
}

func IsAuth(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Kind == KindAuth
}

func IsRetryable(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Retryable()
}

// RetryAfterOf returns the explicit server-provided retry delay, if the
// error carries one. A zero duration means the caller should use its own
// backoff schedule.
func RetryAfterOf(err error) time.Duration {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

type UnresolvableIdentityError struct {
	Source string
	Reason string
}

func (e *UnresolvableIdentityError) Error() string {
	return fmt.Sprintf("unresolvable identity for %s item: %s", e.Source, e.Reason)
}

func IsUnresolvable(err error) bool {
	var ue *UnresolvableIdentityError
	return errors.As(err, &ue)
}

// PersistenceError wraps a ledger read/write failure. Callers must treat
// it as non-fatal: the delivery already happened, losing the ledger only
// risks a future duplicate.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

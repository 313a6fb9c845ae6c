package client

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"
)

// MessageCityNotFound is the only user-visible fetch error text. Every
// failure kind carries it; callers that need to tell failures apart
// inspect Kind instead.
const MessageCityNotFound = "City not found"

type ErrorKind string

const (
	KindInvalid     ErrorKind = "invalid"
	KindTransport   ErrorKind = "transport"
	KindStatus      ErrorKind = "status"
	KindDecode      ErrorKind = "decode"
	KindShape       ErrorKind = "shape"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

type FetchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FetchError) Error() string { return e.Message }

func (e *FetchError) Unwrap() error { return e.Err }

func newFetchError(kind ErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Message: MessageCityNotFound, Err: err}
}

// classifyGetError maps a transport-level failure from BaseClient.Get.
func classifyGetError(err error) *FetchError {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return newFetchError(KindStatus, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return newFetchError(KindUnavailable, err)
	default:
		return newFetchError(KindTransport, err)
	}
}

// KindOf reports the FetchError kind in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}

func shapeError(format string, args ...interface{}) *FetchError {
	return newFetchError(KindShape, fmt.Errorf(format, args...))
}

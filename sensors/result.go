package sensors

import (
	"context"
	"errors"

	"github.com/RUBclim/crowdbike/sds011"
)

// Failure tells why a snapshot carries no value
type Failure int

const (
	FailureNone Failure = iota
	FailureFrame
	FailureIO
	FailureNoValue
	FailureDisabled
)

var (
	// ErrNoValue is a driver that answered without data
	ErrNoValue = errors.New("sensor returned no value")
	// ErrDisabled is a sensor switched off by the user
	ErrDisabled = errors.New("sensor disabled")
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "ok"
	case FailureFrame:
		return "frame"
	case FailureIO:
		return "io"
	case FailureNoValue:
		return "novalue"
	case FailureDisabled:
		return "disabled"
	}
	return "unknown"
}

// Classify maps an error from a driver to a failure kind. Everything unknown is I/O.
func Classify(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, sds011.ErrInvalidFrame):
		return FailureFrame
	case errors.Is(err, ErrNoValue):
		return FailureNoValue
	case errors.Is(err, ErrDisabled):
		return FailureDisabled
	case errors.Is(err, context.Canceled):
		return FailureDisabled
	}
	return FailureIO
}

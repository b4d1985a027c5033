package sensor

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	PermissionDenied ErrorKind = iota + 1
	PositionUnavailable
	Timeout
)

func (k ErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	}
	return "unknown"
}

// Error is fatal to the current tracking attempt.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Message() string {
	switch e.Kind {
	case PermissionDenied:
		return "location access was denied; grant the tracker access to the GPS device or broker and start again"
	case PositionUnavailable:
		return "no position is available; check the GPS antenna and device connection, then start again"
	case Timeout:
		return "the GPS did not report a position in time; move to open sky and start again"
	}
	return "the location sensor failed"
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sensor %s: %v", e.Kind, e.Err)
	}
	return "sensor " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: PositionUnavailable, Err: err}
}

package geometry

import (
	"errors"
	"fmt"
)

type DecodeKind int

const (
	Unparseable DecodeKind = iota + 1
	UnsupportedType
	MissingCoordinates
	InvalidCoordinates
)

func (k DecodeKind) String() string {
	switch k {
	case Unparseable:
		return "unparseable"
	case UnsupportedType:
		return "unsupported_type"
	case MissingCoordinates:
		return "missing_coordinates"
	case InvalidCoordinates:
		return "invalid_coordinates"
	default:
		return "unknown"
	}
}

var (
	ErrUnparseable        = errors.New("unparseable geometry")
	ErrUnsupportedType    = errors.New("unsupported geometry type")
	ErrMissingCoordinates = errors.New("missing coordinates")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// DecodeError reports why a coordinate source could not be turned into a geometry.
// It matches the Err* sentinels with errors.Is.
type DecodeError struct {
	Kind   DecodeKind
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := e.sentinel().Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *DecodeError) sentinel() error {
	switch e.Kind {
	case Unparseable:
		return ErrUnparseable
	case UnsupportedType:
		return ErrUnsupportedType
	case MissingCoordinates:
		return ErrMissingCoordinates
	default:
		return ErrInvalidCoordinates
	}
}

func unparseable(err error) *DecodeError {
	return &DecodeError{Kind: Unparseable, Err: err}
}

func unsupported(typ string) *DecodeError {
	return &DecodeError{Kind: UnsupportedType, Detail: fmt.Sprintf("%q", typ)}
}

func missing(detail string) *DecodeError {
	return &DecodeError{Kind: MissingCoordinates, Detail: detail}
}

func invalid(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: InvalidCoordinates, Detail: fmt.Sprintf(format, args...)}
}
